package squadsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/internal/connectivity"
	"github.com/squadsync/squadsync/pkg/types"
)

func testBackend(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		switch r.URL.Path {
		case "/api/v1/team":
			w.Write([]byte(`{"success":true,"data":{"id":7,"name":"Thunder","points":1543}}`))
		case "/api/v1/dashboard":
			w.Write([]byte(`{"success":true,"data":{"round":12,"round_points":88}}`))
		case "/api/v1/players":
			w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"A"}]}`))
		case "/api/v1/trades":
			w.Write([]byte(`{"success":true,"data":[]}`))
		case "/api/v1/captains":
			w.Write([]byte(`{"success":true,"data":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Configuration {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Network.BaseURL = baseURL
	cfg.Cache.Disk.Enabled = true
	cfg.Cache.Disk.Directory = t.TempDir()
	return cfg
}

func onlineMonitor() types.Monitor {
	return connectivity.Static(types.ConnectionState{
		Online: true, Quality: types.QualityExcellent, Transport: "wlan0",
	})
}

func TestLayerEndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := testBackend(t, &calls)

	layer, err := New(testConfig(t, srv.URL), WithMonitor(onlineMonitor()))
	require.NoError(t, err)
	defer layer.Close()

	result, err := layer.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Resources, 5)
	assert.False(t, result.Failed())

	team := result.Resources[ResourceTeam]
	assert.False(t, team.FromCache)
	assert.JSONEq(t, `{"id":7,"name":"Thunder","points":1543}`, string(team.Payload))

	// Second load answers entirely from cache.
	callsAfterFirst := calls.Load()
	result, err = layer.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Resources[ResourceTeam].FromCache)
	assert.Equal(t, callsAfterFirst, calls.Load(), "fresh cache must answer without network calls")
}

func TestLayerTypedFetches(t *testing.T) {
	srv := testBackend(t, nil)
	layer, err := New(testConfig(t, srv.URL), WithMonitor(onlineMonitor()))
	require.NoError(t, err)
	defer layer.Close()

	team, err := layer.FetchTeam(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "Thunder", team.Name)
	assert.Equal(t, 1543, team.Points)

	dash, err := layer.FetchDashboard(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 12, dash.Round)

	players, err := layer.FetchPlayers(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "A", players[0].Name)
}

func TestLayerLastUpdatedAndClearCache(t *testing.T) {
	srv := testBackend(t, nil)
	layer, err := New(testConfig(t, srv.URL), WithMonitor(onlineMonitor()))
	require.NoError(t, err)
	defer layer.Close()

	_, ok := layer.LastUpdated(ResourceTeam)
	assert.False(t, ok, "nothing cached yet")

	_, err = layer.FetchTeam(context.Background(), true)
	require.NoError(t, err)

	when, ok := layer.LastUpdated(ResourceTeam)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), when, 5*time.Second)

	layer.ClearCache()
	_, ok = layer.LastUpdated(ResourceTeam)
	assert.False(t, ok)
}

func TestLayerOfflineServesCache(t *testing.T) {
	srv := testBackend(t, nil)
	cfg := testConfig(t, srv.URL)

	monitor := connectivity.Static(types.ConnectionState{
		Online: true, Quality: types.QualityExcellent, Transport: "wlan0",
	})
	layer, err := New(cfg, WithMonitor(monitor))
	require.NoError(t, err)
	defer layer.Close()

	_, err = layer.FetchTeam(context.Background(), true)
	require.NoError(t, err)

	monitor.Set(types.ConnectionState{Online: false, Quality: types.QualityPoor})
	srv.Close() // backend gone

	team, err := layer.FetchTeam(context.Background(), true)
	require.NoError(t, err, "offline fetch must serve the cached copy")
	assert.Equal(t, "Thunder", team.Name)
}

func TestLayerConnectivitySurface(t *testing.T) {
	srv := testBackend(t, nil)
	monitor := connectivity.Static(types.ConnectionState{
		Online: true, Quality: types.QualityGood, Transport: "pdp_ip0",
	})
	layer, err := New(testConfig(t, srv.URL), WithMonitor(monitor))
	require.NoError(t, err)
	defer layer.Close()

	state := layer.Connectivity()
	assert.True(t, state.Online)
	assert.Equal(t, types.QualityGood, state.Quality)

	events, cancel := layer.ObserveConnectivity()
	defer cancel()

	monitor.Set(types.ConnectionState{Online: false, Quality: types.QualityPoor})
	select {
	case got := <-events:
		assert.False(t, got.Online)
	case <-time.After(2 * time.Second):
		t.Fatal("connectivity change never delivered")
	}
}

func TestLayerCloseIdempotent(t *testing.T) {
	srv := testBackend(t, nil)
	layer, err := New(testConfig(t, srv.URL), WithMonitor(onlineMonitor()))
	require.NoError(t, err)

	require.NoError(t, layer.Close())
	require.NoError(t, layer.Close())
}

func TestLayerRejectsInvalidConfig(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Network.Retry.MaxAttempts = -1

	_, err := New(cfg)
	assert.Error(t, err)
}
