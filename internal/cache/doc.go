/*
Package cache provides the two-tier resource cache for squadsync.

The store keeps a fast in-memory tier in front of a durable on-disk tier so
the client stays usable offline and across restarts:

	┌─────────────────────────────────────────────┐
	│              Resource Clients               │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│                  Store                      │  ← This Package
	│   Get(key, policy) / Put / Invalidate       │
	└─────────────────────────────────────────────┘
	          │                      │
	┌──────────────────┐   ┌──────────────────────┐
	│   MemoryCache    │   │      DiskCache       │
	│  LRU, bounded by │   │  one file per key +  │
	│  entries & bytes │   │  JSON index, swept   │
	│                  │   │  by retention window │
	└──────────────────┘   └──────────────────────┘

# Freshness vs retention

Two independent clocks govern an entry's life. Its TTL decides freshness:
an expired entry is a miss under ReadFresh but still served under ReadAny
(stale-while-revalidate fallback). The disk retention window decides
reclamation: records older than the window are swept regardless of TTL.

# Write ordering

Entries are immutable; a refresh replaces the whole record. Replacement is
ordered by the entry's StoredAt timestamp, not by completion order, so a
slow background refresh that finishes after a newer explicit refresh is
discarded by every tier.

# Failure semantics

Disk I/O errors never abort a caller: a failed write leaves the entry
uncached, a failed or corrupt read (checksum mismatch) drops the record and
reports a miss. The index itself is disposable; a corrupt index starts
fresh and entries regenerate from the network.
*/
package cache
