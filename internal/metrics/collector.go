package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/pkg/types"
)

// Collector aggregates sync-layer metrics into a private Prometheus
// registry and optionally serves them over HTTP. A nil Collector is valid
// and drops every observation, so callers never need to guard their calls.
type Collector struct {
	cfg      config.MetricsConfig
	registry *prometheus.Registry
	logger   *slog.Logger

	fetchTotal        *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	retryTotal        *prometheus.CounterVec
	cacheEvents       *prometheus.CounterVec
	backgroundRefresh *prometheus.CounterVec
	connectivityUp    prometheus.Gauge
	connQuality       prometheus.Gauge

	server *http.Server
}

// Fetch outcome labels
const (
	OutcomeFresh   = "fresh"
	OutcomeCached  = "cached"
	OutcomeStale   = "stale"
	OutcomeFailure = "failure"
)

// NewCollector creates a collector. When metrics are disabled it returns
// nil, which every method accepts.
func NewCollector(cfg config.MetricsConfig, logger *slog.Logger) *Collector {
	if !cfg.Enabled {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "squadsync"
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}

	c := &Collector{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.With("component", "metrics"),

		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "fetch_total",
			Help:      "Resource fetches by resource and outcome",
		}, []string{"resource", "outcome"}),

		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "End-to-end fetch latency, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"resource"}),

		retryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "retry_total",
			Help:      "Retry attempts by resource",
		}, []string{"resource"}),

		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cache_events_total",
			Help:      "Cache events by tier and event type",
		}, []string{"tier", "event"}),

		backgroundRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "background_refresh_total",
			Help:      "Background revalidations by outcome",
		}, []string{"outcome"}),

		connectivityUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connectivity_online",
			Help:      "Whether the device currently appears online",
		}),

		connQuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connectivity_quality",
			Help:      "Current link quality (0=poor 1=limited 2=good 3=excellent)",
		}),
	}

	c.registry.MustRegister(
		c.fetchTotal,
		c.fetchDuration,
		c.retryTotal,
		c.cacheEvents,
		c.backgroundRefresh,
		c.connectivityUp,
		c.connQuality,
	)

	return c
}

// Start serves the registry over HTTP on the configured port
func (c *Collector) Start(ctx context.Context) error {
	if c == nil {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.cfg.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", c.cfg.Port),
		Handler: mux,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server failed", "error", err)
		}
	}()

	c.logger.Info("metrics server started", "port", c.cfg.Port, "path", c.cfg.Path)
	return nil
}

// Stop shuts down the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// FetchObserved records one logical fetch and its latency
func (c *Collector) FetchObserved(resource, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.fetchTotal.WithLabelValues(resource, outcome).Inc()
	c.fetchDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RetryScheduled records one retry attempt
func (c *Collector) RetryScheduled(resource string) {
	if c == nil {
		return
	}
	c.retryTotal.WithLabelValues(resource).Inc()
}

// CacheEvent implements the cache store's event recorder
func (c *Collector) CacheEvent(tier, event string) {
	if c == nil {
		return
	}
	c.cacheEvents.WithLabelValues(tier, event).Inc()
}

// RefreshObserved records a background revalidation outcome
func (c *Collector) RefreshObserved(err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = OutcomeFailure
	}
	c.backgroundRefresh.WithLabelValues(outcome).Inc()
}

// ConnectivityObserved mirrors the connectivity state into gauges
func (c *Collector) ConnectivityObserved(state types.ConnectionState) {
	if c == nil {
		return
	}
	if state.Online {
		c.connectivityUp.Set(1)
	} else {
		c.connectivityUp.Set(0)
	}
	c.connQuality.Set(float64(state.Quality))
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
