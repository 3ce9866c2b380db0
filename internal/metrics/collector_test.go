package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/pkg/types"
)

func enabledConfig() config.MetricsConfig {
	return config.MetricsConfig{Enabled: true, Port: 0, Path: "/metrics", Namespace: "squadsync"}
}

func TestDisabledCollectorIsNil(t *testing.T) {
	c := NewCollector(config.MetricsConfig{Enabled: false}, nil)
	if c != nil {
		t.Fatal("disabled metrics should produce a nil collector")
	}

	// Every method must be safe on the nil receiver.
	c.FetchObserved("team", OutcomeFresh, time.Second)
	c.RetryScheduled("team")
	c.CacheEvent("memory", "hit")
	c.RefreshObserved(nil)
	c.ConnectivityObserved(types.ConnectionState{Online: true})
	if err := c.Stop(nil); err != nil {
		t.Fatalf("Stop on nil collector: %v", err)
	}
}

func TestFetchObserved(t *testing.T) {
	c := NewCollector(enabledConfig(), nil)

	c.FetchObserved("team", OutcomeFresh, 250*time.Millisecond)
	c.FetchObserved("team", OutcomeFresh, 100*time.Millisecond)
	c.FetchObserved("players", OutcomeFailure, time.Second)

	if got := testutil.ToFloat64(c.fetchTotal.WithLabelValues("team", OutcomeFresh)); got != 2 {
		t.Errorf("fetch_total{team,fresh} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.fetchTotal.WithLabelValues("players", OutcomeFailure)); got != 1 {
		t.Errorf("fetch_total{players,failure} = %v, want 1", got)
	}
}

func TestCacheEvents(t *testing.T) {
	c := NewCollector(enabledConfig(), nil)

	c.CacheEvent("memory", "hit")
	c.CacheEvent("memory", "hit")
	c.CacheEvent("disk", "miss")

	if got := testutil.ToFloat64(c.cacheEvents.WithLabelValues("memory", "hit")); got != 2 {
		t.Errorf("cache_events_total{memory,hit} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.cacheEvents.WithLabelValues("disk", "miss")); got != 1 {
		t.Errorf("cache_events_total{disk,miss} = %v, want 1", got)
	}
}

func TestRefreshOutcomes(t *testing.T) {
	c := NewCollector(enabledConfig(), nil)

	c.RefreshObserved(nil)
	c.RefreshObserved(errors.New("boom"))
	c.RefreshObserved(errors.New("boom"))

	if got := testutil.ToFloat64(c.backgroundRefresh.WithLabelValues("success")); got != 1 {
		t.Errorf("background_refresh_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.backgroundRefresh.WithLabelValues(OutcomeFailure)); got != 2 {
		t.Errorf("background_refresh_total{failure} = %v, want 2", got)
	}
}

func TestConnectivityGauges(t *testing.T) {
	c := NewCollector(enabledConfig(), nil)

	c.ConnectivityObserved(types.ConnectionState{Online: true, Quality: types.QualityExcellent})
	if got := testutil.ToFloat64(c.connectivityUp); got != 1 {
		t.Errorf("connectivity_online = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.connQuality); got != float64(types.QualityExcellent) {
		t.Errorf("connectivity_quality = %v, want %v", got, float64(types.QualityExcellent))
	}

	c.ConnectivityObserved(types.ConnectionState{Online: false, Quality: types.QualityPoor})
	if got := testutil.ToFloat64(c.connectivityUp); got != 0 {
		t.Errorf("connectivity_online = %v, want 0", got)
	}
}
