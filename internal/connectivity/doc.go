// Package connectivity tracks network reachability and link quality for
// the sync layer.
//
// The monitor keeps a single last-known ConnectionState and exposes it two
// ways: Current for synchronous, non-blocking reads on the request path,
// and Subscribe for change notifications. Only changes are published;
// identical consecutive samples are suppressed.
//
//	┌──────────┐  probe tick   ┌──────────┐  on change   ┌─────────────┐
//	│ Sampler  │──────────────▶│ Classify │─────────────▶│ subscribers │
//	└──────────┘               └──────────┘              └─────────────┘
//
// The monitor is advisory. A reported "online" state does not guarantee a
// request will succeed, and callers must treat request-level failures as
// the authoritative signal. Subscribers that fall behind miss intermediate
// events rather than blocking the monitor.
package connectivity
