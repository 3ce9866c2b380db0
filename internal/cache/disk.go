package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/squadsync/squadsync/pkg/types"
)

// DiskCache is the durable on-disk tier. Each entry is an individually
// addressable payload file plus a record in a JSON index. I/O failures are
// never surfaced to callers: a failed write means the entry is simply not
// cached, a failed read is a miss.
type DiskCache struct {
	mu          sync.RWMutex
	directory   string
	maxBytes    int64
	currentSize int64
	index       map[string]*diskItem
	config      DiskConfig
	logger      *slog.Logger
	stats       types.CacheStats

	stopCh chan struct{}
	doneWg sync.WaitGroup
	closed bool
}

// DiskConfig represents disk tier configuration
type DiskConfig struct {
	Directory string
	MaxBytes  int64

	// RetentionWindow bounds disk growth: records older than this are swept
	// regardless of their TTL (TTL governs freshness, retention governs
	// reclamation)
	RetentionWindow time.Duration
	SweepInterval   time.Duration
	IndexFile       string
}

type diskItem struct {
	Key      string        `json:"key"`
	FilePath string        `json:"file_path"`
	Size     int64         `json:"size"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
	Checksum string        `json:"checksum"`
}

// NewDiskCache creates the disk tier, loading any existing index.
func NewDiskCache(config DiskConfig, logger *slog.Logger) (*DiskCache, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("disk cache directory cannot be empty")
	}
	if config.IndexFile == "" {
		config.IndexFile = "cache-index.json"
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 10 * time.Minute
	}
	if config.RetentionWindow <= 0 {
		config.RetentionWindow = 72 * time.Hour
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = 256 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(config.Directory, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &DiskCache{
		directory: config.Directory,
		maxBytes:  config.MaxBytes,
		index:     make(map[string]*diskItem),
		config:    config,
		logger:    logger.With("component", "disk-cache"),
		stats: types.CacheStats{
			Capacity: config.MaxBytes,
		},
		stopCh: make(chan struct{}),
	}

	if err := cache.loadIndex(); err != nil {
		return nil, fmt.Errorf("failed to load cache index: %w", err)
	}

	cache.doneWg.Add(2)
	go cache.sweepLoop()
	go cache.syncLoop()

	return cache, nil
}

// Get returns the entry for key, or nil when absent or unreadable. A
// corrupted or missing payload file removes the record so the next read is
// a clean miss.
func (c *DiskCache) Get(key string) *types.Entry {
	c.mu.RLock()
	item, exists := c.index[key]
	c.mu.RUnlock()

	if !exists {
		c.recordMiss()
		return nil
	}

	payload, err := c.readPayload(item)
	if err != nil {
		c.logger.Warn("unreadable cache record dropped", "key", key, "error", err)
		c.mu.Lock()
		c.removeItem(key)
		c.mu.Unlock()
		c.recordMiss()
		return nil
	}

	c.mu.Lock()
	c.stats.Hits++
	c.updateHitRate()
	c.mu.Unlock()

	return &types.Entry{
		Key:      item.Key,
		Payload:  payload,
		StoredAt: item.StoredAt,
		TTL:      item.TTL,
	}
}

// Put stores an entry, replacing an older record for the same key. The
// payload is written to a temporary file first and renamed into place so no
// reader observes a half-written entry. Rejected when the existing record
// is newer. Returns whether the write applied.
func (c *DiskCache) Put(entry *types.Entry) bool {
	if entry == nil || entry.Key == "" {
		return false
	}

	c.mu.RLock()
	if existing, exists := c.index[entry.Key]; exists && existing.StoredAt.After(entry.StoredAt) {
		c.mu.RUnlock()
		return false
	}
	c.mu.RUnlock()

	item := &diskItem{
		Key:      entry.Key,
		FilePath: c.payloadPath(entry.Key),
		Size:     int64(len(entry.Payload)),
		StoredAt: entry.StoredAt,
		TTL:      entry.TTL,
		Checksum: checksum(entry.Payload),
	}

	// Stage to a uniquely named temp file outside the lock; the rename and
	// the index swap happen in one critical section so the payload on disk
	// always matches the checksum the index records for the key.
	tmpPath, err := c.stagePayload(entry.Payload)
	if err != nil {
		c.logger.Warn("cache write failed, entry not cached", "key", entry.Key, "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.index[entry.Key]; exists && existing.StoredAt.After(entry.StoredAt) {
		_ = os.Remove(tmpPath)
		return false
	}

	if err := os.Rename(tmpPath, item.FilePath); err != nil {
		_ = os.Remove(tmpPath)
		c.logger.Warn("cache write failed, entry not cached", "key", entry.Key, "error", err)
		return false
	}

	if existing, exists := c.index[entry.Key]; exists {
		c.currentSize -= existing.Size
	}
	c.index[entry.Key] = item
	c.currentSize += item.Size
	c.evictIfNeeded()
	return true
}

// Delete removes the record and payload file for key
func (c *DiskCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeItem(key)
}

// Clear removes all records and payload files
func (c *DiskCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range c.index {
		_ = os.Remove(item.FilePath)
	}
	c.index = make(map[string]*diskItem)
	c.currentSize = 0
}

// StoredAt reports when the key was last written, without reading the
// payload file.
func (c *DiskCache) StoredAt(key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.index[key]
	if !exists {
		return time.Time{}, false
	}
	return item.StoredAt, true
}

// Len returns the number of indexed records
func (c *DiskCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// Stats returns cache statistics
func (c *DiskCache) Stats() types.CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Entries = len(c.index)
	stats.Size = c.currentSize
	stats.Utilization = float64(c.currentSize) / float64(c.maxBytes)
	return stats
}

// Sweep removes records whose age exceeds the retention window. It runs
// periodically but is exported so tests and shutdown paths can force it.
func (c *DiskCache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for key, item := range c.index {
		if now.Sub(item.StoredAt) > c.config.RetentionWindow {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeItem(key)
	}
	return len(expired)
}

// Close stops background loops and persists the index
func (c *DiskCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stopCh)
	c.mu.Unlock()

	c.doneWg.Wait()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveIndex()
}

// Helper methods

func (c *DiskCache) payloadPath(key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(c.directory, fmt.Sprintf("%x.cache", hash[:8]))
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// stagePayload writes the payload to a uniquely named temp file in the cache
// directory, so concurrent writers for the same key never share a staging
// file. The caller renames it into place or removes it.
func (c *DiskCache) stagePayload(payload []byte) (string, error) {
	tmp, err := os.CreateTemp(c.directory, "put-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (c *DiskCache) readPayload(item *diskItem) ([]byte, error) {
	data, err := os.ReadFile(item.FilePath)
	if err != nil {
		return nil, err
	}
	if checksum(data) != item.Checksum {
		return nil, fmt.Errorf("checksum mismatch for cached record %s", item.Key)
	}
	return data, nil
}

// removeItem must be called with the lock held
func (c *DiskCache) removeItem(key string) {
	item, exists := c.index[key]
	if !exists {
		return
	}
	_ = os.Remove(item.FilePath)
	delete(c.index, key)
	c.currentSize -= item.Size
	c.stats.Evictions++
}

// evictIfNeeded must be called with the lock held
func (c *DiskCache) evictIfNeeded() {
	for c.currentSize > c.maxBytes && len(c.index) > 0 {
		var oldestKey string
		var oldestTime time.Time
		first := true
		for key, item := range c.index {
			if first || item.StoredAt.Before(oldestTime) {
				oldestKey = key
				oldestTime = item.StoredAt
				first = false
			}
		}
		c.removeItem(oldestKey)
	}
}

func (c *DiskCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.updateHitRate()
	c.mu.Unlock()
}

// updateHitRate must be called with the lock held
func (c *DiskCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}

func (c *DiskCache) indexPath() string {
	return filepath.Join(c.directory, c.config.IndexFile)
}

func (c *DiskCache) loadIndex() error {
	indexPath := c.indexPath()
	if !strings.HasPrefix(filepath.Clean(indexPath), filepath.Clean(c.directory)) {
		return fmt.Errorf("invalid index file path: %s", indexPath)
	}

	data, err := os.ReadFile(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no existing index, start fresh
		}
		return err
	}

	var items map[string]*diskItem
	if err := json.Unmarshal(data, &items); err != nil {
		// A corrupt index is disposable; entries regenerate from the network.
		c.logger.Warn("cache index unreadable, starting fresh", "error", err)
		return nil
	}

	c.currentSize = 0
	for key, item := range items {
		if _, err := os.Stat(item.FilePath); os.IsNotExist(err) {
			continue // skip records whose payload vanished
		}
		c.index[key] = item
		c.currentSize += item.Size
	}

	return nil
}

// saveIndex must be called with at least a read lock held
func (c *DiskCache) saveIndex() error {
	data, err := json.Marshal(c.index)
	if err != nil {
		return err
	}

	tmpPath := c.indexPath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, c.indexPath())
}

func (c *DiskCache) sweepLoop() {
	defer c.doneWg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if removed := c.Sweep(time.Now()); removed > 0 {
				c.logger.Debug("retention sweep removed records", "count", removed)
			}
		}
	}
}

func (c *DiskCache) syncLoop() {
	defer c.doneWg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.RLock()
			if err := c.saveIndex(); err != nil {
				c.logger.Warn("cache index sync failed", "error", err)
			}
			c.mu.RUnlock()
		}
	}
}
