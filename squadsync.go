// Package squadsync is a resilient data-synchronization and caching layer
// for fantasy-sports clients on unreliable mobile networks.
//
// The layer sits between UI code and the backend API. It answers reads
// from a two-tier cache whenever it can, revalidates stale data in the
// background, retries transient failures with backoff, and degrades to
// stale data instead of errors when the network is sick.
//
//	UI ──▶ Layer ──▶ orchestrator ──▶ client ──▶ executor ──▶ backend
//	                      │              │
//	                      └──────── cache store (memory + disk)
//
// Construct a Layer with New, use it from any goroutine, and Close it when
// the app shuts down.
package squadsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/squadsync/squadsync/internal/cache"
	"github.com/squadsync/squadsync/internal/client"
	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/internal/connectivity"
	"github.com/squadsync/squadsync/internal/metrics"
	"github.com/squadsync/squadsync/internal/orchestrator"
	"github.com/squadsync/squadsync/internal/transport"
	syncerrors "github.com/squadsync/squadsync/pkg/errors"
	"github.com/squadsync/squadsync/pkg/types"
)

// Re-exported domain models so callers do not import internal packages.
type (
	Team        = client.Team
	Dashboard   = client.Dashboard
	Player      = client.Player
	Trade       = client.Trade
	CaptainPick = client.CaptainPick

	CompositeResult = orchestrator.CompositeResult
	ResourceStatus  = orchestrator.ResourceStatus
)

// Resource family keys accepted by Load, Refresh and LastUpdated.
const (
	ResourceTeam      = client.ResourceTeam
	ResourceDashboard = client.ResourceDashboard
	ResourcePlayers   = client.ResourcePlayers
	ResourceTrades    = client.ResourceTrades
	ResourceCaptains  = client.ResourceCaptains
)

// Layer is the top-level facade over the sync stack. All methods are safe
// for concurrent use.
type Layer struct {
	cfg       *config.Configuration
	logger    *slog.Logger
	monitor   types.Monitor
	store     *cache.Store
	executor  *transport.Executor
	client    *client.Client
	orch      *orchestrator.Orchestrator
	collector *metrics.Collector

	gaugeCancel func()
	closeOnce   sync.Once
	closeErr    error
}

// Option configures optional Layer behavior
type Option func(*options)

type options struct {
	logger  *slog.Logger
	monitor types.Monitor
	doer    transport.Doer
}

// WithLogger replaces the logger built from the configured log level
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMonitor replaces the interface-probing monitor, for hosts that
// receive platform reachability callbacks
func WithMonitor(m types.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithHTTPClient replaces the executor's HTTP client
func WithHTTPClient(d transport.Doer) Option {
	return func(o *options) { o.doer = d }
}

// New assembles the sync layer from configuration. A nil cfg uses
// defaults. Every dependency is constructed here and injected explicitly;
// nothing in the stack reaches for globals.
func New(cfg *config.Configuration, opts ...Option) (*Layer, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg.Global.LogLevel)
	}

	collector := metrics.NewCollector(cfg.Monitoring.Metrics, logger)

	memBytes, err := cfg.MemoryMaxBytes()
	if err != nil {
		return nil, fmt.Errorf("memory cache size: %w", err)
	}
	memory := cache.NewMemoryCache(cfg.Cache.Memory.MaxEntries, memBytes)

	var disk *cache.DiskCache
	if cfg.Cache.Disk.Enabled {
		diskBytes, err := cfg.DiskMaxBytes()
		if err != nil {
			return nil, fmt.Errorf("disk cache size: %w", err)
		}
		disk, err = cache.NewDiskCache(cache.DiskConfig{
			Directory:       cfg.Cache.Disk.Directory,
			MaxBytes:        diskBytes,
			RetentionWindow: cfg.Cache.Disk.RetentionWindow,
			SweepInterval:   cfg.Cache.Disk.SweepInterval,
			IndexFile:       cfg.Cache.Disk.IndexFile,
		}, logger)
		if err != nil {
			// A broken disk tier degrades to memory-only rather than
			// blocking startup.
			logger.Warn("disk cache unavailable, running memory-only", "error", err)
			disk = nil
		}
	}

	storeOpts := []cache.StoreOption{}
	if collector != nil {
		storeOpts = append(storeOpts, cache.WithRecorder(collector))
	}
	store := cache.NewStore(memory, disk, logger, storeOpts...)

	monitor := o.monitor
	if monitor == nil {
		monitor = connectivity.NewMonitor(logger,
			connectivity.WithInterval(cfg.Network.Probe.Interval))
	}

	executorOpts := []transport.ExecutorOption{
		transport.WithOnAttempt(func(attempt int, serr *syncerrors.SyncError, delay time.Duration) {
			collector.RetryScheduled(serr.Resource)
		}),
	}
	if o.doer != nil {
		executorOpts = append(executorOpts, transport.WithClient(o.doer))
	}
	executor := transport.NewExecutor(cfg.Network, logger, executorOpts...)

	registry := client.NewRegistry(cfg)
	resourceClient := client.New(registry, store, monitor, executor, logger)

	orch := orchestrator.New(registry, resourceClient, store, logger)
	orch.OnRefresh = func(key string, err error) {
		collector.RefreshObserved(err)
	}

	l := &Layer{
		cfg:       cfg,
		logger:    logger.With("component", "layer"),
		monitor:   monitor,
		store:     store,
		executor:  executor,
		client:    resourceClient,
		orch:      orch,
		collector: collector,
	}

	l.gaugeCancel = l.mirrorConnectivity()

	if collector != nil {
		if err := collector.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("metrics server: %w", err)
		}
	}

	return l, nil
}

// Load assembles the requested resources (all families when none are
// given) with stale-while-revalidate semantics. See the orchestrator
// package for the composite's partial-failure contract.
func (l *Layer) Load(ctx context.Context, keys ...string) (*CompositeResult, error) {
	start := time.Now()
	result, err := l.orch.Load(ctx, keys...)
	l.observeComposite(result, err, time.Since(start))
	return result, err
}

// Refresh forces revalidation of the given keys, bypassing the cache
func (l *Layer) Refresh(ctx context.Context, keys ...string) (*CompositeResult, error) {
	start := time.Now()
	result, err := l.orch.Refresh(ctx, keys...)
	l.observeComposite(result, err, time.Since(start))
	return result, err
}

// FetchTeam returns the user's team, from cache when fresh
func (l *Layer) FetchTeam(ctx context.Context, useCache bool) (Team, error) {
	team, _, err := l.client.FetchTeam(ctx, useCache)
	return team, err
}

// FetchDashboard returns the round dashboard
func (l *Layer) FetchDashboard(ctx context.Context, useCache bool) (Dashboard, error) {
	dash, _, err := l.client.FetchDashboard(ctx, useCache)
	return dash, err
}

// FetchPlayers returns the player list
func (l *Layer) FetchPlayers(ctx context.Context, useCache bool) ([]Player, error) {
	players, _, err := l.client.FetchPlayers(ctx, useCache)
	return players, err
}

// FetchTrades returns the trade list
func (l *Layer) FetchTrades(ctx context.Context, useCache bool) ([]Trade, error) {
	trades, _, err := l.client.FetchTrades(ctx, useCache)
	return trades, err
}

// FetchCaptains returns the captain recommendations
func (l *Layer) FetchCaptains(ctx context.Context, useCache bool) ([]CaptainPick, error) {
	picks, _, err := l.client.FetchCaptains(ctx, useCache)
	return picks, err
}

// ClearCache drops every cached entry in both tiers
func (l *Layer) ClearCache() {
	l.client.ClearCache()
}

// LastUpdated reports when a resource was last written to the cache
func (l *Layer) LastUpdated(key string) (time.Time, bool) {
	return l.client.LastUpdated(key)
}

// CacheStats returns combined cache statistics for debugging surfaces
func (l *Layer) CacheStats() types.CacheStats {
	return l.store.Stats()
}

// Connectivity returns the current connection state without blocking
func (l *Layer) Connectivity() types.ConnectionState {
	return l.monitor.Current()
}

// ObserveConnectivity returns a stream of connectivity changes and a
// cancel function releasing the subscription
func (l *Layer) ObserveConnectivity() (<-chan types.ConnectionState, func()) {
	return l.monitor.Subscribe()
}

// Close shuts the layer down: background refreshes finish, the monitor
// stops, the disk index is persisted, the metrics server exits. Safe to
// call more than once.
func (l *Layer) Close() error {
	l.closeOnce.Do(func() {
		if l.gaugeCancel != nil {
			l.gaugeCancel()
		}
		if err := l.orch.Close(); err != nil {
			l.closeErr = err
		}
		if err := l.monitor.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
		if err := l.store.Close(); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.collector.Stop(ctx); err != nil && l.closeErr == nil {
			l.closeErr = err
		}
	})
	return l.closeErr
}

// observeComposite feeds composite outcomes into the metrics collector
func (l *Layer) observeComposite(result *CompositeResult, err error, duration time.Duration) {
	if l.collector == nil {
		return
	}
	if err != nil || result == nil {
		l.collector.FetchObserved("composite", metrics.OutcomeFailure, duration)
		return
	}
	for key, status := range result.Resources {
		switch {
		case status.Err != nil:
			l.collector.FetchObserved(key, metrics.OutcomeFailure, duration)
		case status.FromCache:
			l.collector.FetchObserved(key, metrics.OutcomeCached, duration)
		default:
			l.collector.FetchObserved(key, metrics.OutcomeFresh, duration)
		}
	}
}

// mirrorConnectivity keeps the connectivity gauges current
func (l *Layer) mirrorConnectivity() func() {
	l.collector.ConnectivityObserved(l.monitor.Current())

	events, cancel := l.monitor.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for state := range events {
			l.collector.ConnectivityObserved(state)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
