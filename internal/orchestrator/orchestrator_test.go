package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadsync/squadsync/internal/client"
	"github.com/squadsync/squadsync/internal/config"
	syncerrors "github.com/squadsync/squadsync/pkg/errors"
	"github.com/squadsync/squadsync/pkg/types"
)

type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*types.Entry
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]*types.Entry)}
}

func (s *fakeStore) Get(key string, policy types.ReadPolicy) *types.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if policy == types.ReadFresh && entry.Expired(time.Now()) {
		return nil
	}
	return entry.Clone()
}

func (s *fakeStore) Put(key string, payload []byte, ttl time.Duration, storedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &types.Entry{Key: key, Payload: payload, TTL: ttl, StoredAt: storedAt}
	return true
}

func (s *fakeStore) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *fakeStore) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*types.Entry)
}

func (s *fakeStore) LastUpdated(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[key]; ok {
		return entry.StoredAt, true
	}
	return time.Time{}, false
}

func (s *fakeStore) Stats() types.CacheStats { return types.CacheStats{} }

type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(res client.Resource, useCache bool) (types.FetchResult, error)
}

func newFakeFetcher(fn func(res client.Resource, useCache bool) (types.FetchResult, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), fn: fn}
}

func (f *fakeFetcher) Fetch(ctx context.Context, res client.Resource, useCache bool) (types.FetchResult, error) {
	f.mu.Lock()
	f.calls[res.Key]++
	f.mu.Unlock()
	return f.fn(res, useCache)
}

func (f *fakeFetcher) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func okFetch(payload string) func(res client.Resource, useCache bool) (types.FetchResult, error) {
	return func(res client.Resource, useCache bool) (types.FetchResult, error) {
		return types.FetchResult{Payload: []byte(payload), StoredAt: time.Now()}, nil
	}
}

func testRegistry() *client.Registry {
	return client.NewRegistry(config.NewDefault())
}

func staleEntry(key string) *types.Entry {
	return &types.Entry{Key: key, Payload: []byte(`{"stale":true}`), TTL: time.Minute, StoredAt: time.Now().Add(-time.Hour)}
}

func freshEntry(key string) *types.Entry {
	return &types.Entry{Key: key, Payload: []byte(`{"fresh":true}`), TTL: time.Hour, StoredAt: time.Now()}
}

func TestLoadFreshEntriesSkipNetwork(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceTeam] = freshEntry(client.ResourceTeam)
	fetcher := newFakeFetcher(okFetch(`{}`))

	o := New(testRegistry(), fetcher, store, nil)
	defer o.Close()

	result, err := o.Load(context.Background(), client.ResourceTeam)
	require.NoError(t, err)

	status := result.Resources[client.ResourceTeam]
	assert.True(t, status.FromCache)
	assert.JSONEq(t, `{"fresh":true}`, string(status.Payload))
	assert.Zero(t, fetcher.callCount(client.ResourceTeam))
	assert.False(t, result.Failed())
}

func TestLoadStaleServedImmediatelyThenRefreshed(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceDashboard] = staleEntry(client.ResourceDashboard)

	refreshed := make(chan struct{})
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		defer close(refreshed)
		assert.False(t, useCache, "background refresh must reach the network")
		return types.FetchResult{Payload: []byte(`{"round":5}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, store, nil)
	defer o.Close()

	start := time.Now()
	result, err := o.Load(context.Background(), client.ResourceDashboard)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "stale data must not wait for revalidation")

	status := result.Resources[client.ResourceDashboard]
	assert.True(t, status.FromCache)
	assert.JSONEq(t, `{"stale":true}`, string(status.Payload))

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("background refresh never ran")
	}
}

func TestLoadBackgroundRefreshFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceTrades] = staleEntry(client.ResourceTrades)

	var refreshErr error
	done := make(chan struct{})
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		return types.FetchResult{}, syncerrors.New(syncerrors.KindServer, "backend down")
	})

	o := New(testRegistry(), fetcher, store, nil)
	o.OnRefresh = func(key string, err error) {
		refreshErr = err
		close(done)
	}
	defer o.Close()

	result, err := o.Load(context.Background(), client.ResourceTrades)
	require.NoError(t, err, "a failed revalidation must not fail the load")
	assert.False(t, result.Failed())
	assert.True(t, result.Resources[client.ResourceTrades].FromCache)

	select {
	case <-done:
		assert.Error(t, refreshErr)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh callback never fired")
	}
}

func TestLoadMissingFetchesBlocking(t *testing.T) {
	fetcher := newFakeFetcher(okFetch(`{"id":1}`))
	o := New(testRegistry(), fetcher, newFakeStore(), nil)
	defer o.Close()

	result, err := o.Load(context.Background(), client.ResourcePlayers)
	require.NoError(t, err)

	status := result.Resources[client.ResourcePlayers]
	assert.False(t, status.FromCache)
	assert.JSONEq(t, `{"id":1}`, string(status.Payload))
	assert.Equal(t, 1, fetcher.callCount(client.ResourcePlayers))
}

func TestLoadOptionalFailureIsPartial(t *testing.T) {
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		if res.Key == client.ResourceCaptains {
			return types.FetchResult{}, syncerrors.New(syncerrors.KindServer, "backend down").WithResource(res.Key)
		}
		return types.FetchResult{Payload: []byte(`{}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, newFakeStore(), nil)
	defer o.Close()

	result, err := o.Load(context.Background(), client.ResourcePlayers, client.ResourceCaptains)
	require.NoError(t, err, "optional failures must not abort the load")

	assert.True(t, result.Failed())
	assert.Equal(t, []string{client.ResourceCaptains}, result.FailedKeys)

	captains := result.Resources[client.ResourceCaptains]
	require.NotNil(t, captains.Err)
	assert.Equal(t, syncerrors.KindServer, captains.Err.Kind)

	players := result.Resources[client.ResourcePlayers]
	assert.Nil(t, players.Err)
	assert.NotEmpty(t, players.Payload)
}

func TestLoadRequiredFailureAborts(t *testing.T) {
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		if res.Key == client.ResourceTeam {
			return types.FetchResult{}, syncerrors.New(syncerrors.KindAuthentication, "token expired").WithResource(res.Key)
		}
		return types.FetchResult{Payload: []byte(`{}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, newFakeStore(), nil)
	defer o.Close()

	_, err := o.Load(context.Background(), client.ResourceTeam, client.ResourcePlayers)
	require.Error(t, err)
	assert.Equal(t, syncerrors.KindAuthentication, syncerrors.KindOf(err))
}

func TestLoadNoKeysLoadsAllFamilies(t *testing.T) {
	fetcher := newFakeFetcher(okFetch(`{}`))
	o := New(testRegistry(), fetcher, newFakeStore(), nil)
	defer o.Close()

	result, err := o.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Resources, 5)
}

func TestLoadUnknownKeyFails(t *testing.T) {
	o := New(testRegistry(), newFakeFetcher(okFetch(`{}`)), newFakeStore(), nil)
	defer o.Close()

	_, err := o.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestConcurrentLoadsShareOneFlight(t *testing.T) {
	gate := make(chan struct{})
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		<-gate
		return types.FetchResult{Payload: []byte(`{}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, newFakeStore(), nil)
	defer o.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Load(context.Background(), client.ResourcePlayers)
			assert.NoError(t, err)
		}()
	}

	// Give the goroutines time to pile onto the same flight.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, 1, fetcher.callCount(client.ResourcePlayers),
		"concurrent loads for one key must share a single network call")
}

func TestRefreshBypassesCache(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceTeam] = freshEntry(client.ResourceTeam)

	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		assert.False(t, useCache)
		return types.FetchResult{Payload: []byte(`{"id":2}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, store, nil)
	defer o.Close()

	result, err := o.Refresh(context.Background(), client.ResourceTeam)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.callCount(client.ResourceTeam), "refresh must hit the network despite a fresh cache")
	assert.JSONEq(t, `{"id":2}`, string(result.Resources[client.ResourceTeam].Payload))
}

func TestCloseWaitsForBackgroundRefresh(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceTeam] = staleEntry(client.ResourceTeam)

	started := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)
	fetcher := newFakeFetcher(func(res client.Resource, useCache bool) (types.FetchResult, error) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Done()
		return types.FetchResult{Payload: []byte(`{}`), StoredAt: time.Now()}, nil
	})

	o := New(testRegistry(), fetcher, store, nil)

	_, err := o.Load(context.Background(), client.ResourceTeam)
	require.NoError(t, err)

	<-started
	require.NoError(t, o.Close())
	finished.Wait() // would hang if Close returned before the refresh ended

	require.NoError(t, o.Close(), "Close must be idempotent")
}

func TestLoadAfterCloseSkipsBackgroundRefresh(t *testing.T) {
	store := newFakeStore()
	store.entries[client.ResourceTeam] = staleEntry(client.ResourceTeam)
	fetcher := newFakeFetcher(okFetch(`{}`))

	o := New(testRegistry(), fetcher, store, nil)
	require.NoError(t, o.Close())

	result, err := o.Load(context.Background(), client.ResourceTeam)
	require.NoError(t, err, "stale data should still be served after Close")
	assert.True(t, result.Resources[client.ResourceTeam].FromCache)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, fetcher.callCount(client.ResourceTeam),
		"no refresh may start once Close has begun waiting")
}

func TestConcurrentLoadsRacingClose(t *testing.T) {
	store := newFakeStore()
	for _, key := range []string{client.ResourceTeam, client.ResourceDashboard, client.ResourcePlayers} {
		store.entries[key] = staleEntry(key)
	}
	fetcher := newFakeFetcher(okFetch(`{}`))

	o := New(testRegistry(), fetcher, store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				o.Load(context.Background(), client.ResourceTeam, client.ResourceDashboard, client.ResourcePlayers)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, o.Close())
	wg.Wait()
}
