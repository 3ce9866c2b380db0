package client

import (
	"fmt"
	"sort"
	"time"

	"github.com/squadsync/squadsync/internal/config"
)

// Resource family keys. Every cache entry, metric label and error
// attribution uses these.
const (
	ResourceTeam      = "team"
	ResourceDashboard = "dashboard"
	ResourcePlayers   = "players"
	ResourceTrades    = "trades"
	ResourceCaptains  = "captains"
)

// Resource describes one backend resource family: where to fetch it, how
// long a cached copy stays fresh, and whether a sync can succeed without it.
type Resource struct {
	Key      string
	Path     string
	TTL      time.Duration
	Required bool
}

// Registry holds the known resource families keyed by name
type Registry struct {
	resources map[string]Resource
}

// NewRegistry builds the resource registry, taking TTLs from configuration.
// The set of families and their paths is fixed; only freshness is tunable.
func NewRegistry(cfg *config.Configuration) *Registry {
	families := []Resource{
		{Key: ResourceTeam, Path: "/api/v1/team", Required: true},
		{Key: ResourceDashboard, Path: "/api/v1/dashboard"},
		{Key: ResourcePlayers, Path: "/api/v1/players"},
		{Key: ResourceTrades, Path: "/api/v1/trades"},
		{Key: ResourceCaptains, Path: "/api/v1/captains"},
	}

	r := &Registry{resources: make(map[string]Resource, len(families))}
	for _, res := range families {
		res.TTL = cfg.ResourceTTL(res.Key)
		r.resources[res.Key] = res
	}
	return r
}

// Lookup returns the resource for key
func (r *Registry) Lookup(key string) (Resource, error) {
	res, ok := r.resources[key]
	if !ok {
		return Resource{}, fmt.Errorf("unknown resource %q", key)
	}
	return res, nil
}

// All returns every registered resource in stable key order
func (r *Registry) All() []Resource {
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
