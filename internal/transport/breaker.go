package transport

import (
	"sync"
	"time"

	syncerrors "github.com/squadsync/squadsync/pkg/errors"
)

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	// BreakerClosed - requests pass through
	BreakerClosed BreakerState = iota
	// BreakerOpen - requests are rejected without touching the network
	BreakerOpen
	// BreakerHalfOpen - a single probe request is allowed through
	BreakerHalfOpen
)

// String returns string representation of the state
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker trips after a run of consecutive backend failures and rejects
// requests until a cooldown elapses. After cooldown a single probe is let
// through: success closes the breaker, failure reopens it for another
// cooldown. Only failures that indicate a sick backend (server and
// connectivity errors) count toward the trip threshold; client-side errors
// pass through without affecting breaker state.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// Allow reports whether a request may proceed. In half-open state only the
// first caller gets through; concurrent callers are rejected until the
// probe resolves.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if now.Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return true
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// Record reports the outcome of an allowed request. counts indicates
// whether the failure should move breaker state; pass false for outcomes
// that say nothing about backend health.
func (b *Breaker) Record(success, counts bool, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.probing = false
		if success {
			b.state = BreakerClosed
			b.failures = 0
		} else if counts {
			b.state = BreakerOpen
			b.openedAt = now
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	if !counts {
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = now
	}
}

// State returns the current breaker state
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// countsForBreaker reports whether a failure kind indicates backend
// trouble. Auth and data errors are the caller's problem; rate limits are
// a healthy backend saying slow down.
func countsForBreaker(kind syncerrors.Kind) bool {
	return kind == syncerrors.KindServer || kind == syncerrors.KindConnectivity || kind == syncerrors.KindUnknown
}

// breakerSet lazily creates one breaker per resource so a failing endpoint
// does not block healthy ones.
type breakerSet struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
}

func newBreakerSet(threshold int, cooldown time.Duration) *breakerSet {
	return &breakerSet{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

func (s *breakerSet) get(resource string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[resource]; ok {
		return b
	}
	b := NewBreaker(s.threshold, s.cooldown)
	s.breakers[resource] = b
	return b
}
