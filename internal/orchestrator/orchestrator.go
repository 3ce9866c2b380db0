package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/squadsync/squadsync/internal/client"
	syncerrors "github.com/squadsync/squadsync/pkg/errors"
	"github.com/squadsync/squadsync/pkg/types"
)

// Fetcher is the slice of the resource client the orchestrator needs
type Fetcher interface {
	Fetch(ctx context.Context, res client.Resource, useCache bool) (types.FetchResult, error)
}

// ResourceStatus is the per-resource outcome of a Load. Exactly one of
// Payload or Err is meaningful; FromCache and StoredAt qualify the payload.
type ResourceStatus struct {
	Payload   []byte
	FromCache bool
	StoredAt  time.Time
	Err       *syncerrors.SyncError
}

// CompositeResult aggregates one Load across all requested resources.
// FailedKeys lists the resources whose status carries an error, sorted.
type CompositeResult struct {
	Resources  map[string]ResourceStatus
	FailedKeys []string
}

// Failed reports whether any requested resource failed
func (r *CompositeResult) Failed() bool {
	return len(r.FailedKeys) > 0
}

// Orchestrator coordinates multi-resource sync with stale-while-revalidate
// semantics: cached data is returned immediately and stale entries are
// refreshed in the background, detached from the caller's context.
type Orchestrator struct {
	registry *client.Registry
	fetcher  Fetcher
	store    types.Store
	logger   *slog.Logger

	flight singleflight.Group

	// session context bounds background refreshes; Close cancels it.
	// refreshMu makes the closed check and the WaitGroup Add atomic with
	// respect to Close, so no refresh can be admitted once Close waits.
	sessionCtx context.Context
	cancel     context.CancelFunc
	refreshMu  sync.Mutex
	refreshWg  sync.WaitGroup
	closed     bool
	closeOnce  sync.Once

	// OnRefresh is invoked after each background refresh with its outcome,
	// for metrics wiring.
	OnRefresh func(key string, err error)
}

// New creates an orchestrator. Close must be called to stop background
// refreshes.
func New(registry *client.Registry, fetcher Fetcher, store types.Store, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:   registry,
		fetcher:    fetcher,
		store:      store,
		logger:     logger.With("component", "orchestrator"),
		sessionCtx: ctx,
		cancel:     cancel,
	}
}

// Load assembles the requested resources. With no keys it loads every
// registered family.
//
// Fresh cached entries are included as-is. Stale entries are included
// immediately and refreshed in the background on the orchestrator's own
// context, so a caller abandoning the Load does not abandon the refresh.
// Missing entries are fetched blocking, fanned out concurrently.
//
// A blocking-fetch failure on a required resource fails the whole Load and
// cancels its sibling fetches. Failures on optional resources land in the
// per-resource status and FailedKeys; the composite still returns.
func (o *Orchestrator) Load(ctx context.Context, keys ...string) (*CompositeResult, error) {
	resources, err := o.resolve(keys)
	if err != nil {
		return nil, err
	}

	result := &CompositeResult{Resources: make(map[string]ResourceStatus, len(resources))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	for _, res := range resources {
		if entry := o.store.Get(res.Key, types.ReadFresh); entry != nil {
			result.Resources[res.Key] = ResourceStatus{
				Payload:   entry.Payload,
				FromCache: true,
				StoredAt:  entry.StoredAt,
			}
			continue
		}

		if entry := o.store.Get(res.Key, types.ReadAny); entry != nil {
			result.Resources[res.Key] = ResourceStatus{
				Payload:   entry.Payload,
				FromCache: true,
				StoredAt:  entry.StoredAt,
			}
			o.refreshInBackground(res)
			continue
		}

		res := res
		g.Go(func() error {
			status, fetchErr := o.fetchShared(gctx, res, true)
			if fetchErr != nil && res.Required {
				return fetchErr
			}
			mu.Lock()
			result.Resources[res.Key] = status
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for key, status := range result.Resources {
		if status.Err != nil {
			result.FailedKeys = append(result.FailedKeys, key)
		}
	}
	sort.Strings(result.FailedKeys)

	return result, nil
}

// resolve maps keys to resources, defaulting to all families
func (o *Orchestrator) resolve(keys []string) ([]client.Resource, error) {
	if len(keys) == 0 {
		return o.registry.All(), nil
	}
	resources := make([]client.Resource, 0, len(keys))
	for _, key := range keys {
		res, err := o.registry.Lookup(key)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, nil
}

// fetchShared performs a deduplicated fetch: concurrent Loads asking for
// the same key share one network call.
func (o *Orchestrator) fetchShared(ctx context.Context, res client.Resource, useCache bool) (ResourceStatus, error) {
	v, err, _ := o.flight.Do(res.Key, func() (interface{}, error) {
		return o.fetcher.Fetch(ctx, res, useCache)
	})
	if err != nil {
		syncErr, ok := syncerrors.As(err)
		if !ok {
			syncErr = syncerrors.New(syncerrors.KindUnknown, err.Error()).WithResource(res.Key)
		}
		return ResourceStatus{Err: syncErr}, err
	}

	fetched := v.(types.FetchResult)
	return ResourceStatus{
		Payload:   fetched.Payload,
		FromCache: fetched.FromCache,
		StoredAt:  fetched.StoredAt,
	}, nil
}

// refreshInBackground revalidates a stale entry without blocking the
// caller. The refresh runs on the session context and bypasses the cache
// read path so it always reaches the network; the store's timestamp
// ordering discards the result if something newer landed meanwhile.
func (o *Orchestrator) refreshInBackground(res client.Resource) {
	o.refreshMu.Lock()
	if o.closed {
		o.refreshMu.Unlock()
		return
	}
	o.refreshWg.Add(1)
	o.refreshMu.Unlock()

	go func() {
		defer o.refreshWg.Done()

		_, err := o.fetchSharedBackground(res)
		if err != nil {
			// Stale data is already in the caller's hands; the refresh
			// failing is worth a log line, nothing more.
			o.logger.Warn("background refresh failed",
				"resource", res.Key,
				"kind", string(syncerrors.KindOf(err)))
		}
		if o.OnRefresh != nil {
			o.OnRefresh(res.Key, err)
		}
	}()
}

func (o *Orchestrator) fetchSharedBackground(res client.Resource) (types.FetchResult, error) {
	v, err, _ := o.flight.Do(res.Key, func() (interface{}, error) {
		return o.fetcher.Fetch(o.sessionCtx, res, false)
	})
	if err != nil {
		return types.FetchResult{}, err
	}
	return v.(types.FetchResult), nil
}

// Refresh forces a blocking revalidation of the given keys, bypassing the
// cache read path. Used by pull-to-refresh surfaces.
func (o *Orchestrator) Refresh(ctx context.Context, keys ...string) (*CompositeResult, error) {
	resources, err := o.resolve(keys)
	if err != nil {
		return nil, err
	}

	result := &CompositeResult{Resources: make(map[string]ResourceStatus, len(resources))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, res := range resources {
		res := res
		g.Go(func() error {
			status, fetchErr := o.fetchShared(gctx, res, false)
			if fetchErr != nil && res.Required {
				return fetchErr
			}
			mu.Lock()
			result.Resources[res.Key] = status
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for key, status := range result.Resources {
		if status.Err != nil {
			result.FailedKeys = append(result.FailedKeys, key)
		}
	}
	sort.Strings(result.FailedKeys)

	return result, nil
}

// Close stops background refreshes and waits for in-flight ones. Safe to
// call more than once.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		o.refreshMu.Lock()
		o.closed = true
		o.refreshMu.Unlock()
		o.cancel()
	})
	o.refreshWg.Wait()
	return nil
}
