// Package orchestrator coordinates multi-resource sync.
//
// A Load classifies every requested resource by cache state and treats
// each class differently:
//
//	fresh    ──▶ include immediately, no network
//	stale    ──▶ include immediately + detached background refresh
//	missing  ──▶ blocking concurrent fetch
//
// The composite result returns as soon as the blocking fetches settle;
// background refreshes outlive the call and are bounded by the
// orchestrator's lifetime, not the caller's context. Concurrent requests
// for the same resource are collapsed into a single network call.
//
// Partial failure is the normal case on a flaky mobile link: a failed
// optional resource is recorded in its own status slot and the rest of the
// composite stands. Only a required resource failing its blocking fetch
// aborts the whole Load.
package orchestrator
