// Package client binds resource families to the cache and the request
// executor.
//
// Each family (team, dashboard, players, trades, captains) carries a fixed
// backend path, a configurable TTL and a required flag. Fetch applies the
// cache policy matrix:
//
//	             useCache=true                         useCache=false
//	offline      any cached copy, else CONNECTIVITY    always fetch
//	online       fresh hit, else fetch+cache           always fetch
//
// Fetch failures of the server/throttled/transport/unknown class fall back
// to a stale cached copy when one exists. Authentication failures never
// serve stale: old data does not fix a bad token, and hiding the failure
// would keep the user from re-authenticating.
//
// Payloads travel as raw envelope data; Decode and the typed FetchXxx
// wrappers produce the domain models.
package client
