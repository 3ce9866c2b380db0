package types

import (
	"time"
)

// Quality classifies the usefulness of the current network link. It is a
// heuristic derived from transport class and metering, not a measured
// throughput estimate.
type Quality int

const (
	// QualityPoor indicates no usable transport or an unclassified one
	QualityPoor Quality = iota

	// QualityLimited indicates a metered or expensive link; callers should
	// prefer cached data over network fetches
	QualityLimited

	// QualityGood indicates a wide-area (cellular-class) link
	QualityGood

	// QualityExcellent indicates a high-bandwidth (broadband-class) link
	QualityExcellent
)

// String returns the string representation of the quality level
func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityLimited:
		return "limited"
	case QualityPoor:
		return "poor"
	default:
		return "unknown"
	}
}

// ConnectionState is the last-known view of network reachability. It carries
// no history; the connectivity monitor replaces it wholesale on each change.
type ConnectionState struct {
	Online    bool    `json:"online"`
	Quality   Quality `json:"quality"`
	Expensive bool    `json:"expensive"`
	Transport string  `json:"transport,omitempty"`
}

// ReadPolicy controls how the cache store treats expired entries on read.
type ReadPolicy int

const (
	// ReadFresh treats an expired entry as a miss
	ReadFresh ReadPolicy = iota

	// ReadAny returns an entry regardless of expiration; callers that want
	// "serve stale if nothing else is available" use this policy
	ReadAny
)

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// FetchResult is the outcome of a single resource fetch, with enough
// metadata for a caller to distinguish fresh data from cached fallback.
type FetchResult struct {
	Payload   []byte    `json:"payload"`
	FromCache bool      `json:"from_cache"`
	StoredAt  time.Time `json:"stored_at"`
}
