package types

import (
	"time"
)

// Entry is a single cached resource snapshot. Entries are immutable once
// written; a refresh replaces the whole entry rather than mutating it.
type Entry struct {
	Key      string        `json:"key"`
	Payload  []byte        `json:"payload"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// Expired reports whether the entry is stale at the given instant. A zero
// TTL means the entry never expires.
func (e *Entry) Expired(now time.Time) bool {
	if e.TTL == 0 {
		return false
	}
	return now.Sub(e.StoredAt) > e.TTL
}

// Age returns how long ago the entry was written
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Clone returns a deep copy so callers never alias the cache's internal
// buffers. Reads must be bit-identical until the next write.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Payload = make([]byte, len(e.Payload))
	copy(cp.Payload, e.Payload)
	return &cp
}
