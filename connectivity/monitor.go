package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ridewave/httppipe/logger"
)

// DefaultInterval is how long a probe result is trusted.
const DefaultInterval = 5 * time.Second

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets how long a probe result stays valid.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger logs state transitions.
func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor caches the result of a Probe. A stale cache is refreshed by the
// next reader; concurrent readers share a single probe.
type Monitor struct {
	probe    Probe
	interval time.Duration
	log      logger.Logger
	now      func() time.Time

	mu        sync.RWMutex
	online    bool
	checkedAt time.Time
	known     bool

	group singleflight.Group

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewMonitor wraps probe.
func NewMonitor(probe Probe, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		interval: DefaultInterval,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline returns the cached state, probing first when it is older than
// the interval. If ctx ends while waiting for a probe, the last known state
// is returned.
func (m *Monitor) IsOnline(ctx context.Context) bool {
	if online, fresh := m.cached(); fresh {
		return online
	}

	ch := m.group.DoChan("probe", func() (any, error) {
		online := m.probe.HasConnection(context.WithoutCancel(ctx))
		m.Observe(online)
		return online, nil
	})

	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		online, _ := m.cached()
		return online
	}
}

// Check is IsOnline as an error: ErrOffline when offline.
func (m *Monitor) Check(ctx context.Context) error {
	if !m.IsOnline(ctx) {
		return ErrOffline
	}
	return nil
}

func (m *Monitor) cached() (online, fresh bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.known {
		return true, false
	}
	return m.online, m.now().Sub(m.checkedAt) < m.interval
}

// Observe records a state learned outside the probe, e.g. a push event.
func (m *Monitor) Observe(online bool) {
	m.mu.Lock()
	changed := !m.known || m.online != online
	m.online = online
	m.known = true
	m.checkedAt = m.now()
	m.mu.Unlock()

	if changed {
		m.log.Info().Bool("online", online).Msg("Connectivity state changed")
	}
}

// Start refreshes the state every interval in the background and, when the
// probe is a Watcher, applies its push events. Calling Start twice is a
// no-op until Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	var changes <-chan bool
	if w, ok := m.probe.(Watcher); ok {
		changes = w.Changes()
	}

	go m.run(ctx, changes, m.done)
}

func (m *Monitor) run(ctx context.Context, changes <-chan bool, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			m.Observe(online)
		case <-ticker.C:
			online := m.probe.HasConnection(ctx)
			if ctx.Err() != nil {
				return
			}
			m.Observe(online)
		}
	}
}

// Stop ends the background loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
