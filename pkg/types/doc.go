/*
Package types provides the core interfaces, data structures, and type definitions for squadsync.

This package is the foundation of the synchronization layer: it defines the contracts
between components and the value types shared across the codebase.

# Architecture Overview

The layer is organized leaf-first, each component consuming only the ones below it:

	┌─────────────────────────────────────────────┐
	│            Sync Orchestrator                │
	│         (internal/orchestrator)             │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│            Resource Clients                 │
	│            (internal/client)                │
	└─────────────────────────────────────────────┘
	        │             │              │
	┌──────────────┐ ┌──────────┐ ┌──────────────┐
	│ Cache Store  │ │ Request  │ │ Connectivity │
	│ (internal/   │ │ Executor │ │ Monitor      │
	│  cache)      │ │ (internal│ │ (internal/   │
	│              │ │ /transport)│ connectivity)│
	└──────────────┘ └──────────┘ └──────────────┘

# Core Interfaces

  - Monitor: live, best-effort view of network reachability and link quality
  - Store: two-tier (memory + disk) cache with per-entry expiration

Both are satisfied by the in-tree implementations and by the test fakes used in
client and orchestrator tests.

# Key Types

  - Entry: immutable cached snapshot with StoredAt timestamp and TTL
  - ConnectionState: last-known reachability and Quality classification
  - ReadPolicy: whether an expired entry counts as a hit (ReadAny) or a miss (ReadFresh)
  - CacheStats: hit/miss/eviction counters with derived rates
*/
package types
