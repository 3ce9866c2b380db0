package cache

import (
	"container/list"
	"sync"

	"github.com/squadsync/squadsync/pkg/types"
)

// MemoryCache is the fast in-memory tier: a thread-safe LRU bounded by both
// entry count and total payload bytes. It stores entries regardless of
// freshness; expiration policy is applied by the Store on read.
type MemoryCache struct {
	mu          sync.RWMutex
	maxEntries  int
	maxBytes    int64
	currentSize int64
	items       map[string]*memoryItem
	evictList   *list.List

	stats types.CacheStats
}

type memoryItem struct {
	entry   *types.Entry
	element *list.Element
}

// listKey is the value stored in evictList elements
type listKey struct {
	key string
}

// NewMemoryCache creates the memory tier. Non-positive bounds fall back to
// safe defaults.
func NewMemoryCache(maxEntries int, maxBytes int64) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	if maxBytes <= 0 {
		maxBytes = 32 * 1024 * 1024
	}

	return &MemoryCache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		items:      make(map[string]*memoryItem),
		evictList:  list.New(),
		stats: types.CacheStats{
			Capacity: maxBytes,
		},
	}
}

// Get returns a copy of the entry for key, or nil when absent. A hit moves
// the entry to the front of the eviction list.
func (c *MemoryCache) Get(key string) *types.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		return nil
	}

	c.evictList.MoveToFront(item.element)
	c.stats.Hits++
	c.updateHitRate()

	return item.entry.Clone()
}

// Put stores an entry, replacing any existing one for the same key. The
// replacement is rejected when the stored entry is newer (last writer wins
// by StoredAt, not by completion order). Returns whether the write applied.
func (c *MemoryCache) Put(entry *types.Entry) bool {
	if entry == nil || entry.Key == "" {
		return false
	}

	entry = entry.Clone()

	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[entry.Key]; exists {
		if item.entry.StoredAt.After(entry.StoredAt) {
			return false
		}
		c.currentSize -= int64(len(item.entry.Payload))
		item.entry = entry
		c.currentSize += int64(len(entry.Payload))
		c.evictList.MoveToFront(item.element)
		c.evictIfNeeded()
		return true
	}

	element := c.evictList.PushFront(&listKey{key: entry.Key})
	c.items[entry.Key] = &memoryItem{entry: entry, element: element}
	c.currentSize += int64(len(entry.Payload))

	c.evictIfNeeded()
	return true
}

// peek returns the stored entry without touching LRU order or stats; used
// by the store for write-ordering checks.
func (c *MemoryCache) peek(key string) *types.Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if item, exists := c.items[key]; exists {
		return item.entry
	}
	return nil
}

// Delete removes the entry for key, if present
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeItem(key)
}

// Clear removes all entries
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*memoryItem)
	c.evictList.Init()
	c.currentSize = 0
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Size returns the total payload bytes held
func (c *MemoryCache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentSize
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.items)
	stats.Size = c.currentSize
	stats.Utilization = float64(c.currentSize) / float64(c.maxBytes)
	return stats
}

// removeItem must be called with the lock held
func (c *MemoryCache) removeItem(key string) {
	item, exists := c.items[key]
	if !exists {
		return
	}

	c.evictList.Remove(item.element)
	delete(c.items, key)
	c.currentSize -= int64(len(item.entry.Payload))
}

// evictIfNeeded must be called with the lock held
func (c *MemoryCache) evictIfNeeded() {
	for (c.currentSize > c.maxBytes || len(c.items) > c.maxEntries) && c.evictList.Len() > 0 {
		element := c.evictList.Back()
		if element == nil {
			return
		}
		lk := element.Value.(*listKey)
		c.removeItem(lk.key)
		c.stats.Evictions++
	}
}

func (c *MemoryCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
