package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/squadsync/squadsync/internal/transport"
	syncerrors "github.com/squadsync/squadsync/pkg/errors"
	"github.com/squadsync/squadsync/pkg/types"
)

// Executor is the slice of the request executor the client needs
type Executor interface {
	Execute(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// envelope is the backend's uniform response wrapper
type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// Client fetches resource families, mediating between the cache and the
// network according to the caller's cache policy and current connectivity.
type Client struct {
	registry *Registry
	store    types.Store
	monitor  types.Monitor
	executor Executor
	logger   *slog.Logger

	// now is swapped out in tests for deterministic StoredAt values
	now func() time.Time
}

// New creates a resource client
func New(registry *Registry, store types.Store, monitor types.Monitor, executor Executor, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		registry: registry,
		store:    store,
		monitor:  monitor,
		executor: executor,
		logger:   logger.With("component", "client"),
		now:      time.Now,
	}
}

// Registry exposes the resource registry for callers that iterate families
func (c *Client) Registry() *Registry {
	return c.registry
}

// Fetch returns the resource's payload, consulting the cache per useCache:
//
//   - offline with useCache: any cached copy regardless of staleness, or a
//     CONNECTIVITY error without touching the network.
//   - online with useCache: a fresh cached copy short-circuits; otherwise
//     fetch, cache, and return the fresh payload.
//   - useCache false: always fetch; a success overwrites the cached entry.
//
// When a fetch fails with a retryable-class error and a cached copy exists,
// the stale copy is served instead (FromCache true). Authentication and
// data errors always propagate: re-presenting old data cannot fix a bad
// token, and a malformed payload is malformed from the cache too.
func (c *Client) Fetch(ctx context.Context, res Resource, useCache bool) (types.FetchResult, error) {
	if useCache {
		if !c.monitor.Current().Online {
			if entry := c.store.Get(res.Key, types.ReadAny); entry != nil {
				return fromEntry(entry), nil
			}
			return types.FetchResult{}, syncerrors.New(syncerrors.KindConnectivity, "offline with no cached copy").
				WithResource(res.Key)
		}
		if entry := c.store.Get(res.Key, types.ReadFresh); entry != nil {
			return fromEntry(entry), nil
		}
	}

	payload, storedAt, err := c.fetchRemote(ctx, res)
	if err != nil {
		if useCache && staleServable(err) {
			if entry := c.store.Get(res.Key, types.ReadAny); entry != nil {
				c.logger.Warn("serving stale copy after fetch failure",
					"resource", res.Key,
					"age", entry.Age(c.now()).String(),
					"kind", string(syncerrors.KindOf(err)))
				return fromEntry(entry), nil
			}
		}
		return types.FetchResult{}, err
	}

	c.store.Put(res.Key, payload, res.TTL, storedAt)
	return types.FetchResult{Payload: payload, FromCache: false, StoredAt: storedAt}, nil
}

// fetchRemote performs the network fetch and unwraps the response envelope
func (c *Client) fetchRemote(ctx context.Context, res Resource) ([]byte, time.Time, error) {
	resp, err := c.executor.Execute(ctx, transport.Request{
		Resource: res.Key,
		Path:     res.Path,
	})
	if err != nil {
		return nil, time.Time{}, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, time.Time{}, syncerrors.New(syncerrors.KindData, "response is not a valid envelope").
			WithCause(err).
			WithResource(res.Key).
			WithRequestID(resp.RequestID)
	}
	if !env.Success {
		msg := env.Message
		if msg == "" {
			msg = "backend reported failure"
		}
		return nil, time.Time{}, syncerrors.New(syncerrors.KindData, msg).
			WithResource(res.Key).
			WithRequestID(resp.RequestID)
	}

	// StoredAt is stamped at fetch completion; the store uses it to discard
	// writes from slower, older fetches.
	return env.Data, c.now(), nil
}

// ClearCache drops every cached entry in both tiers
func (c *Client) ClearCache() {
	c.store.InvalidateAll()
}

// LastUpdated reports when the resource was last written to the cache
func (c *Client) LastUpdated(key string) (time.Time, bool) {
	return c.store.LastUpdated(key)
}

// FetchTeam fetches and decodes the team resource
func (c *Client) FetchTeam(ctx context.Context, useCache bool) (Team, types.FetchResult, error) {
	return fetchTyped[Team](ctx, c, ResourceTeam, useCache)
}

// FetchDashboard fetches and decodes the dashboard resource
func (c *Client) FetchDashboard(ctx context.Context, useCache bool) (Dashboard, types.FetchResult, error) {
	return fetchTyped[Dashboard](ctx, c, ResourceDashboard, useCache)
}

// FetchPlayers fetches and decodes the player list
func (c *Client) FetchPlayers(ctx context.Context, useCache bool) ([]Player, types.FetchResult, error) {
	return fetchTyped[[]Player](ctx, c, ResourcePlayers, useCache)
}

// FetchTrades fetches and decodes the trade list
func (c *Client) FetchTrades(ctx context.Context, useCache bool) ([]Trade, types.FetchResult, error) {
	return fetchTyped[[]Trade](ctx, c, ResourceTrades, useCache)
}

// FetchCaptains fetches and decodes the captain recommendations
func (c *Client) FetchCaptains(ctx context.Context, useCache bool) ([]CaptainPick, types.FetchResult, error) {
	return fetchTyped[[]CaptainPick](ctx, c, ResourceCaptains, useCache)
}

func fetchTyped[T any](ctx context.Context, c *Client, key string, useCache bool) (T, types.FetchResult, error) {
	var zero T
	res, err := c.registry.Lookup(key)
	if err != nil {
		return zero, types.FetchResult{}, err
	}
	result, err := c.Fetch(ctx, res, useCache)
	if err != nil {
		return zero, types.FetchResult{}, err
	}
	out, err := Decode[T](result)
	if err != nil {
		return zero, result, err
	}
	return out, result, nil
}

// staleServable reports whether a failure may be papered over with a stale
// cached copy. Server trouble, throttling, mid-flight transport failures
// and unclassified failures qualify; auth and data errors never do.
func staleServable(err error) bool {
	switch syncerrors.KindOf(err) {
	case syncerrors.KindServer, syncerrors.KindRateLimited, syncerrors.KindConnectivity, syncerrors.KindUnknown:
		return true
	default:
		return false
	}
}

func fromEntry(entry *types.Entry) types.FetchResult {
	return types.FetchResult{
		Payload:   entry.Payload,
		FromCache: true,
		StoredAt:  entry.StoredAt,
	}
}
