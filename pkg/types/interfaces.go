package types

import (
	"time"
)

// Monitor defines the connectivity monitor interface
type Monitor interface {
	// Current returns the latest known state; it never blocks
	Current() ConnectionState

	// Subscribe returns a stream of state-change events starting from "now"
	// and a cancel function that releases the subscription
	Subscribe() (<-chan ConnectionState, func())

	Close() error
}

// Store defines the two-tier cache store interface. All mutation of cached
// state goes through this narrow surface; it is internally synchronized.
type Store interface {
	// Get returns the entry for key, or nil when absent or, under ReadFresh,
	// expired. The returned entry is a private copy.
	Get(key string, policy ReadPolicy) *Entry

	// Put stores a new entry in both tiers. It reports whether the write was
	// applied; a write older than the current entry's StoredAt is discarded
	// (last writer wins by timestamp, not by completion order).
	Put(key string, payload []byte, ttl time.Duration, storedAt time.Time) bool

	Invalidate(key string)
	InvalidateAll()

	// LastUpdated reports when the key was last written, for UI freshness
	// display. The second result is false when the key is absent.
	LastUpdated(key string) (time.Time, bool)

	Stats() CacheStats
}
