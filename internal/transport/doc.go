// Package transport implements the request executor: a single chokepoint
// through which every backend call flows.
//
//	caller ──▶ breaker ──▶ attempt loop ──▶ classify ──▶ retry / fail
//
// Retry policy:
//
//   - 5xx and transport failures retry with exponential backoff
//     (base * 2^attempt, ±20% jitter, capped at MaxDelay)
//   - 429 retries after a fixed rate-limit pause instead of backoff
//   - 401 fails immediately as AUTHENTICATION
//   - other 4xx fail immediately as DATA
//   - context cancellation aborts without further attempts
//
// The attempt budget counts attempts, not retries: MaxAttempts of 3 means
// one initial call plus at most two retries. Every error leaving this
// package is a *errors.SyncError tagged with the resource, a per-request
// UUID (also sent upstream as X-Request-ID), and the attempt count.
//
// Each resource family gets its own circuit breaker so one failing
// endpoint cannot starve the rest. While a breaker is open, requests fail
// fast with a retryable SERVER error, which upper layers treat as
// permission to serve stale cache.
package transport
