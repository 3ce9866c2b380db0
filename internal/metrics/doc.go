// Package metrics exposes sync-layer observability through a private
// Prometheus registry.
//
// The collector is deliberately nil-safe: NewCollector returns nil when
// metrics are disabled, and every method on a nil receiver is a no-op.
// Call sites stay unconditional instead of sprouting enabled-checks.
package metrics
