package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/squadsync/squadsync/internal/config"
	syncerrors "github.com/squadsync/squadsync/pkg/errors"
)

// Request describes a logical backend call. Resource names the resource
// family for error attribution and per-resource circuit breaking; Path is
// relative to the executor's base URL.
type Request struct {
	Resource string
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
}

// Response is the outcome of a successful Execute. Attempts counts every
// network call made, including the successful one.
type Response struct {
	Status    int
	Body      []byte
	RequestID string
	Attempts  int
	Duration  time.Duration
}

// Doer abstracts the HTTP client for testing
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor issues HTTP requests with bounded retries, exponential backoff
// and per-resource circuit breaking. Errors come back classified so
// callers can decide between failing, retrying later, and serving stale
// cache.
type Executor struct {
	baseURL string
	client  Doer
	retry   config.RetryConfig
	timeout time.Duration

	breakers *breakerSet
	logger   *slog.Logger

	// sleep is swapped out in tests to avoid real waits
	sleep func(ctx context.Context, d time.Duration) error

	// OnAttempt is invoked before each retry wait with the failed attempt
	// number (1-based), the classified error, and the scheduled delay.
	OnAttempt func(attempt int, err *syncerrors.SyncError, delay time.Duration)
}

// ExecutorOption configures optional Executor behavior
type ExecutorOption func(*Executor)

// WithClient replaces the underlying HTTP client
func WithClient(c Doer) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

// WithSleep replaces the backoff wait, for tests
func WithSleep(fn func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) { e.sleep = fn }
}

// WithOnAttempt sets the retry callback
func WithOnAttempt(fn func(attempt int, err *syncerrors.SyncError, delay time.Duration)) ExecutorOption {
	return func(e *Executor) { e.OnAttempt = fn }
}

// NewExecutor creates an executor from network configuration
func NewExecutor(cfg config.NetworkConfig, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retry:   cfg.Retry,
		timeout: cfg.Timeouts.Request,
		logger:  logger.With("component", "transport"),
		sleep:   sleepCtx,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.Timeouts.Connect,
				}).DialContext,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: cfg.Timeouts.Connect,
			},
		},
	}
	if cfg.Breaker.Enabled {
		e.breakers = newBreakerSet(cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs the request with the configured retry policy. It
// returns the first terminal outcome: a 2xx response, a non-retryable
// error, or the last error once the attempt budget is spent. The returned
// error is always a *syncerrors.SyncError carrying resource, request ID
// and attempt count.
func (e *Executor) Execute(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	var breaker *Breaker
	if e.breakers != nil {
		breaker = e.breakers.get(req.Resource)
		if !breaker.Allow(time.Now()) {
			return nil, syncerrors.New(syncerrors.KindServer, "circuit open, request rejected").
				WithResource(req.Resource).
				WithRequestID(requestID)
		}
	}

	maxAttempts := e.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr *syncerrors.SyncError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = syncerrors.New(syncerrors.KindConnectivity, "request canceled").
				WithCause(ctx.Err()).
				WithResource(req.Resource).
				WithRequestID(requestID).
				WithAttempts(attempt - 1)
			break
		}

		resp, attemptErr := e.attempt(ctx, req, requestID)
		if attemptErr == nil {
			if breaker != nil {
				breaker.Record(true, false, time.Now())
			}
			resp.RequestID = requestID
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			return resp, nil
		}

		lastErr = attemptErr.WithResource(req.Resource).WithRequestID(requestID).WithAttempts(attempt)

		if !lastErr.Retryable || attempt == maxAttempts {
			break
		}

		delay := e.delayFor(lastErr.Kind, attempt)
		if e.OnAttempt != nil {
			e.OnAttempt(attempt, lastErr, delay)
		}
		e.logger.Warn("request failed, retrying",
			"resource", req.Resource,
			"request_id", requestID,
			"attempt", attempt,
			"kind", string(lastErr.Kind),
			"delay", delay)

		if err := e.sleep(ctx, delay); err != nil {
			lastErr = syncerrors.New(syncerrors.KindConnectivity, "request canceled during backoff").
				WithCause(err).
				WithResource(req.Resource).
				WithRequestID(requestID).
				WithAttempts(attempt)
			break
		}
	}

	if breaker != nil {
		// A caller giving up says nothing about backend health; only
		// genuine backend failures count toward the trip threshold.
		counts := countsForBreaker(lastErr.Kind) && ctx.Err() == nil
		breaker.Record(false, counts, time.Now())
	}

	e.logger.Error("request exhausted",
		"resource", req.Resource,
		"request_id", requestID,
		"attempts", lastErr.Attempts,
		"kind", string(lastErr.Kind))

	return nil, lastErr
}

// attempt performs a single HTTP exchange and classifies its outcome
func (e *Executor) attempt(ctx context.Context, req Request, requestID string) (*Response, *syncerrors.SyncError) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if e.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	target := e.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return nil, syncerrors.New(syncerrors.KindData, fmt.Sprintf("invalid request: %v", err)).WithCause(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		// The parent context being done means the caller gave up; do not
		// blame the network for that.
		if ctx.Err() != nil {
			return nil, syncerrors.New(syncerrors.KindConnectivity, "request canceled").WithCause(ctx.Err())
		}
		return nil, syncerrors.New(syncerrors.KindConnectivity, "transport failure").WithCause(err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, syncerrors.New(syncerrors.KindConnectivity, "response body truncated").WithCause(err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, syncerrors.FromStatus(httpResp.StatusCode)
	}

	return &Response{Status: httpResp.StatusCode, Body: payload}, nil
}

// delayFor computes the wait before the next attempt. Rate limits get a
// fixed, longer pause; everything else backs off exponentially with an
// optional ±20% jitter, capped at MaxDelay.
func (e *Executor) delayFor(kind syncerrors.Kind, attempt int) time.Duration {
	if kind == syncerrors.KindRateLimited {
		return e.retry.RateLimitDelay
	}

	delay := float64(e.retry.BaseDelay) * math.Pow(2, float64(attempt-1))
	if ceiling := float64(e.retry.MaxDelay); e.retry.MaxDelay > 0 && delay > ceiling {
		delay = ceiling
	}
	if e.retry.Jitter {
		delay += delay * 0.2 * (rand.Float64()*2 - 1)
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
