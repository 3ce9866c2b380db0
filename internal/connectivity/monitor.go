package connectivity

import (
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/squadsync/squadsync/pkg/types"
)

// Link is a raw observation of the device's network path, before quality
// classification.
type Link struct {
	Up        bool
	Transport string
	Metered   bool
}

// Sampler produces the current Link observation. Samplers must be cheap;
// they run on every probe tick. A Sampler cannot fail: when it has nothing
// better, it reports the last thing it knew.
type Sampler func() Link

// Monitor maintains a live, best-effort view of network reachability and
// quality and notifies subscribers on change. The monitor itself cannot
// fail; absence of updates means the last known state persists.
type Monitor struct {
	mu      sync.RWMutex
	state   types.ConnectionState
	subs    map[int]chan types.ConnectionState
	nextSub int

	sampler  Sampler
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	doneWg sync.WaitGroup
	closed bool
}

// Option configures optional Monitor behavior
type Option func(*Monitor)

// WithSampler replaces the default interface-based sampler
func WithSampler(s Sampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

// WithInterval sets the probe interval
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// NewMonitor creates a monitor and starts its probe loop. The initial state
// comes from a synchronous first sample so Current never reports a zero
// value.
func NewMonitor(logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		subs:     make(map[int]chan types.ConnectionState),
		sampler:  sampleInterfaces,
		interval: 15 * time.Second,
		logger:   logger.With("component", "connectivity"),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.state = Classify(m.sampler())

	m.doneWg.Add(1)
	go m.probeLoop()

	return m
}

// Static creates a monitor pinned to a fixed state with no probe loop.
// Hosts that receive platform reachability callbacks feed updates through
// Set; tests use it to simulate offline conditions.
func Static(state types.ConnectionState) *Monitor {
	return &Monitor{
		state:  state,
		subs:   make(map[int]chan types.ConnectionState),
		logger: slog.Default().With("component", "connectivity"),
		stopCh: make(chan struct{}),
		closed: true, // no loop to stop
	}
}

// Current returns the latest known state; it never blocks
func (m *Monitor) Current() types.ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe returns a stream of state-change events starting from "now",
// plus a cancel function. Slow subscribers miss intermediate states rather
// than blocking the monitor; the latest state is always retrievable via
// Current.
func (m *Monitor) Subscribe() (<-chan types.ConnectionState, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan types.ConnectionState, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Set replaces the current state, publishing to subscribers when it changed
func (m *Monitor) Set(state types.ConnectionState) {
	m.mu.Lock()
	changed := state != m.state
	m.state = state
	if changed {
		// Sends stay under the lock: unsubscribe and Close close these
		// channels under the same lock, so a send never races a close.
		for _, ch := range m.subs {
			select {
			case ch <- state:
			default: // subscriber lagging, drop the event
			}
		}
	}
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("connectivity changed",
		"online", state.Online, "quality", state.Quality.String(), "transport", state.Transport)
}

// Close stops the probe loop and closes all subscriptions
func (m *Monitor) Close() error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.stopCh)
	}
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.mu.Unlock()

	m.doneWg.Wait()
	return nil
}

func (m *Monitor) probeLoop() {
	defer m.doneWg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Set(Classify(m.sampler()))
		}
	}
}

// Classify derives link quality from a raw observation. The rule is a
// heuristic over transport class and metering, not a throughput estimate:
// metered links are limited regardless of speed, broadband-class transports
// are excellent, cellular-class are good, anything else is poor.
func Classify(link Link) types.ConnectionState {
	state := types.ConnectionState{
		Online:    link.Up,
		Expensive: link.Metered,
		Transport: link.Transport,
		Quality:   types.QualityPoor,
	}
	if !link.Up {
		return state
	}

	switch {
	case link.Metered:
		state.Quality = types.QualityLimited
	case isBroadband(link.Transport):
		state.Quality = types.QualityExcellent
	case isCellular(link.Transport):
		state.Quality = types.QualityGood
	}
	return state
}

func isBroadband(transport string) bool {
	for _, prefix := range []string{"en", "eth", "wlan", "wl", "wifi"} {
		if strings.HasPrefix(transport, prefix) {
			return true
		}
	}
	return false
}

func isCellular(transport string) bool {
	for _, prefix := range []string{"wwan", "rmnet", "pdp_ip", "cell"} {
		if strings.HasPrefix(transport, prefix) {
			return true
		}
	}
	return false
}

// sampleInterfaces is the default sampler: it scans the host's interfaces
// for an up, non-loopback link carrying an address. Metering is not
// detectable portably, so it reports unmetered; hosts with a platform
// reachability API should feed Set directly instead.
func sampleInterfaces() Link {
	ifaces, err := net.Interfaces()
	if err != nil {
		return Link{}
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return Link{Up: true, Transport: iface.Name}
	}
	return Link{}
}
