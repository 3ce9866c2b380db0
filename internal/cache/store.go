package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/squadsync/squadsync/pkg/types"
)

// EventRecorder receives tier-level cache events ("hit", "miss", "write",
// "stale") for metrics. A nil recorder is valid and records nothing.
type EventRecorder interface {
	CacheEvent(tier, event string)
}

// Store coordinates the two cache tiers. Reads check memory first and fall
// back to disk, promoting disk hits into memory. Writes go to both tiers.
// The Store is the only mutable shared resource in the layer; every cached
// byte passes through this interface.
type Store struct {
	// mu serializes the read-compare-swap in Put; it is never held across
	// disk I/O
	mu sync.Mutex

	memory   *MemoryCache
	disk     *DiskCache // nil when the disk tier is disabled
	logger   *slog.Logger
	recorder EventRecorder
}

// StoreOption configures optional Store behavior
type StoreOption func(*Store)

// WithRecorder attaches a metrics event recorder
func WithRecorder(r EventRecorder) StoreOption {
	return func(s *Store) { s.recorder = r }
}

// NewStore creates a two-tier store. disk may be nil for a memory-only
// configuration (disk tier disabled).
func NewStore(memory *MemoryCache, disk *DiskCache, logger *slog.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		memory: memory,
		disk:   disk,
		logger: logger.With("component", "cache-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the entry for key, or nil when absent. Under ReadFresh an
// expired entry counts as a miss; under ReadAny it is returned so callers
// can serve stale data as a degraded fallback.
func (s *Store) Get(key string, policy types.ReadPolicy) *types.Entry {
	now := time.Now()

	if entry := s.memory.Get(key); entry != nil {
		if policy == types.ReadFresh && entry.Expired(now) {
			s.record("memory", "stale")
			return nil
		}
		s.record("memory", "hit")
		return entry
	}

	if s.disk == nil {
		s.record("memory", "miss")
		return nil
	}

	entry := s.disk.Get(key)
	if entry == nil {
		s.record("disk", "miss")
		return nil
	}

	// Promote the disk hit so the next read is a memory hit.
	s.memory.Put(entry)

	if policy == types.ReadFresh && entry.Expired(now) {
		s.record("disk", "stale")
		return nil
	}
	s.record("disk", "hit")
	return entry.Clone()
}

// Put stores a new entry in both tiers. Writes are ordered by StoredAt: a
// write older than the current entry is discarded so a slow background
// refresh can never clobber a newer explicit refresh. Returns whether the
// write applied.
func (s *Store) Put(key string, payload []byte, ttl time.Duration, storedAt time.Time) bool {
	entry := &types.Entry{
		Key:      key,
		Payload:  payload,
		StoredAt: storedAt,
		TTL:      ttl,
	}

	s.mu.Lock()
	if last, ok := s.lastStored(key); ok && last.After(storedAt) {
		s.mu.Unlock()
		s.logger.Debug("discarding out-of-order write", "key", key,
			"stored_at", storedAt, "newer", last)
		return false
	}
	s.memory.Put(entry)
	s.mu.Unlock()

	if s.disk != nil {
		// The disk tier re-checks ordering internally; I/O stays outside
		// the store lock.
		s.disk.Put(entry)
	}

	s.record("store", "write")
	return true
}

// Invalidate removes the entry for key from both tiers
func (s *Store) Invalidate(key string) {
	s.memory.Delete(key)
	if s.disk != nil {
		s.disk.Delete(key)
	}
}

// InvalidateAll removes every entry (logout, explicit cache clear)
func (s *Store) InvalidateAll() {
	s.memory.Clear()
	if s.disk != nil {
		s.disk.Clear()
	}
}

// LastUpdated reports when key was last written, for freshness display
func (s *Store) LastUpdated(key string) (time.Time, bool) {
	return s.lastStored(key)
}

// Stats returns combined statistics across both tiers
func (s *Store) Stats() types.CacheStats {
	combined := s.memory.Stats()
	if s.disk != nil {
		d := s.disk.Stats()
		combined.Hits += d.Hits
		combined.Misses += d.Misses
		combined.Evictions += d.Evictions
		combined.Entries += d.Entries
		combined.Size += d.Size
		combined.Capacity += d.Capacity
	}

	total := combined.Hits + combined.Misses
	if total > 0 {
		combined.HitRate = float64(combined.Hits) / float64(total)
	}
	if combined.Capacity > 0 {
		combined.Utilization = float64(combined.Size) / float64(combined.Capacity)
	}
	return combined
}

// Close flushes and stops the disk tier
func (s *Store) Close() error {
	if s.disk != nil {
		return s.disk.Close()
	}
	return nil
}

func (s *Store) lastStored(key string) (time.Time, bool) {
	if entry := s.memory.peek(key); entry != nil {
		return entry.StoredAt, true
	}
	if s.disk != nil {
		return s.disk.StoredAt(key)
	}
	return time.Time{}, false
}

func (s *Store) record(tier, event string) {
	if s.recorder != nil {
		s.recorder.CacheEvent(tier, event)
	}
}
