/*
Package config provides configuration management for the squadsync layer.

Configuration is loaded in layers with later sources overriding earlier ones:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│           (SQUADSYNC_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration Files                 │
	│            (YAML format)                    │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Built-in Defaults                   │ ← Lowest Priority
	│          (NewDefault())                     │
	└─────────────────────────────────────────────┘

Every knob the layer exposes lives here: retry budget and backoff delays,
the 429 rate-limit delay, per-tier cache size limits, the disk retention
window, per-resource-family TTLs, and the metrics endpoint.

Size limits are human-readable strings ("32MB", "1GB") parsed with
go-humanize. Validate() rejects configurations the layer cannot run with.
*/
package config
