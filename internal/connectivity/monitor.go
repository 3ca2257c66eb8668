// Package connectivity tracks network and server reachability for the engine.
// It combines an OS-level network signal with periodic reachability probes and
// publishes typed transition events.
package connectivity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/allisson/posoffline/internal/pubsub"
)

// Prober checks that the remote authority answers with a genuine response.
type Prober interface {
	Probe(ctx context.Context) error
}

// Config holds monitor settings.
type Config struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxAttempts   int
	// SlowLatency widens the probe interval and timeout when exceeded.
	SlowLatency time.Duration
	// FastLatency restores the configured interval and timeout.
	FastLatency time.Duration
}

// maxAdaptiveFactor bounds how far a slow link stretches the interval and timeout.
const maxAdaptiveFactor = 4

// Monitor is the connectivity state machine.
type Monitor struct {
	config Config
	prober Prober
	signal NetworkSignal
	events *pubsub.Broker[Event]
	logger *slog.Logger
	now    func() time.Time
	jitter func(attempt int) time.Duration

	mu          sync.Mutex
	state       State
	attempt     int
	interval    time.Duration
	timeout     time.Duration
	lastProbe   time.Time
	lastLatency time.Duration
	lastError   string

	lifecycle sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	kick      chan struct{}
	rechecks  singleflight.Group
}

// NewMonitor creates a stopped monitor. The initial state follows signal;
// the server is treated as unreachable until the first probe succeeds.
func NewMonitor(config Config, prober Prober, signal NetworkSignal, logger *slog.Logger) *Monitor {
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 30 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 5 * time.Second
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = time.Minute
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}
	if config.SlowLatency <= 0 {
		config.SlowLatency = 2 * time.Second
	}
	if config.FastLatency <= 0 {
		config.FastLatency = 200 * time.Millisecond
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := &Monitor{
		config: config,
		prober: prober,
		signal: signal,
		events: pubsub.NewBroker[Event](),
		logger: logger,
		now:    time.Now,
		kick:   make(chan struct{}, 1),
	}
	m.jitter = func(attempt int) time.Duration {
		return FullJitter(attempt, m.config.BaseDelay, m.config.MaxDelay)
	}
	m.reset()
	return m
}

// reset puts the state machine back where a new monitor starts: state from
// the network signal, no failed attempts, configured interval and timeout.
func (m *Monitor) reset() {
	online := m.signal.Online()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateUnreachable
	if !online {
		m.state = StateOffline
	}
	m.attempt = 0
	m.interval = m.config.ProbeInterval
	m.timeout = m.config.ProbeTimeout
	m.lastError = ""
}

// Start begins watching the network signal and probing. Each start behaves
// like a new monitor. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	m.reset()
	watch := m.signal.Watch(ctx)
	m.running.Store(true)

	go m.run(ctx, watch, m.done)
	m.logger.Info("connectivity monitor started")
}

// Stop cancels in-flight probes and releases the timer and signal watcher.
// Calling Stop on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.running.Store(false)
	m.cancel = nil
	m.done = nil
	m.logger.Info("connectivity monitor stopped")
}

func (m *Monitor) run(ctx context.Context, watch <-chan bool, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	schedule := func() {
		if delay, ok := m.nextDelay(); ok {
			timer.Reset(delay)
			return
		}
		timer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-watch:
			if !ok {
				watch = nil
				continue
			}
			if m.handleNetwork(online) {
				timer.Reset(0)
				continue
			}
			schedule()
		case <-m.kick:
			schedule()
		case <-timer.C:
			_ = m.probe(ctx)
			schedule()
		}
	}
}

// handleNetwork applies an OS-level transition and reports whether an
// immediate probe is due.
func (m *Monitor) handleNetwork(online bool) bool {
	m.mu.Lock()
	var event *Event
	switch {
	case online && m.state == StateOffline:
		m.state = StateUnreachable
		m.attempt = 0
		event = m.eventLocked(EventConnectionRestored)
	case !online && m.state != StateOffline:
		m.state = StateOffline
		event = m.eventLocked(EventConnectionLost)
	}
	m.mu.Unlock()

	if event == nil {
		return false
	}
	m.publish(*event)
	return event.Type == EventConnectionRestored
}

// nextDelay returns when the next automatic probe is due, or false when
// automatic probing is suspended.
func (m *Monitor) nextDelay() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateOffline:
		return 0, false
	case StateReachable:
		return m.interval, true
	}
	if m.attempt == 0 {
		return 0, true
	}
	if m.attempt >= m.config.MaxAttempts {
		m.logger.Warn("reconnect attempts exhausted, waiting for a network signal or manual recheck",
			slog.Int("attempts", m.attempt),
		)
		return 0, false
	}
	return m.jitter(m.attempt - 1), true
}

func (m *Monitor) probe(ctx context.Context) error {
	m.mu.Lock()
	offline := m.state == StateOffline
	timeout := m.timeout
	m.mu.Unlock()

	if offline {
		return ErrNetworkDown
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := m.now()
	err := m.prober.Probe(probeCtx)
	latency := m.now().Sub(start)

	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	m.record(err, latency)
	return err
}

func (m *Monitor) record(err error, latency time.Duration) {
	m.mu.Lock()
	m.lastProbe = m.now()
	m.lastLatency = latency

	var event *Event
	if err == nil {
		m.attempt = 0
		m.lastError = ""
		m.adapt(latency)
		if m.state == StateUnreachable {
			m.state = StateReachable
			event = m.eventLocked(EventServerReachable)
		}
	} else {
		m.attempt++
		m.lastError = err.Error()
		if m.state == StateReachable {
			m.state = StateUnreachable
			event = m.eventLocked(EventServerUnreachable)
		}
	}
	attempt := m.attempt
	m.mu.Unlock()

	if err != nil {
		m.logger.Debug("reachability probe failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	if event != nil {
		m.publish(*event)
	}
}

// adapt stretches the probe interval and timeout on slow links and restores
// them once the link is fast again. Callers hold m.mu.
func (m *Monitor) adapt(latency time.Duration) {
	switch {
	case latency > m.config.SlowLatency:
		m.interval = min(m.interval*2, m.config.ProbeInterval*maxAdaptiveFactor)
		m.timeout = min(m.timeout+m.timeout/2, m.config.ProbeTimeout*maxAdaptiveFactor)
	case latency < m.config.FastLatency:
		m.interval = m.config.ProbeInterval
		m.timeout = m.config.ProbeTimeout
	}
}

func (m *Monitor) eventLocked(t EventType) *Event {
	return &Event{
		Type:    t,
		State:   m.state,
		Attempt: m.attempt,
		Latency: m.lastLatency,
		At:      m.now().UTC(),
	}
}

func (m *Monitor) publish(event Event) {
	m.logger.Info("connectivity changed",
		slog.String("event", string(event.Type)),
		slog.String("state", string(event.State)),
	)
	m.events.Publish(event)
}

// Recheck resets the attempt counter and probes immediately. Concurrent
// callers share a single probe.
func (m *Monitor) Recheck(ctx context.Context) error {
	_, err, _ := m.rechecks.Do("recheck", func() (any, error) {
		m.mu.Lock()
		m.attempt = 0
		m.mu.Unlock()

		err := m.probe(ctx)
		select {
		case m.kick <- struct{}{}:
		default:
		}
		return nil, err
	})
	return err
}

// Subscribe registers fn for every transition event.
func (m *Monitor) Subscribe(fn func(Event)) pubsub.Disposer {
	return m.events.Subscribe(fn)
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:         m.state,
		NetworkOnline: m.state != StateOffline,
		Reachable:     m.state == StateReachable,
		Attempt:       m.attempt,
		LastProbe:     m.lastProbe,
		LastLatency:   m.lastLatency,
		LastError:     m.lastError,
		ProbeInterval: m.interval,
		ProbeTimeout:  m.timeout,
		Running:       m.running.Load(),
	}
}

// IsOffline reports whether the network is down or the server unreachable.
func (m *Monitor) IsOffline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != StateReachable
}

// WaitForConnection blocks until the server is reachable, timeout elapses
// (ErrWaitTimeout) or ctx is done.
func (m *Monitor) WaitForConnection(ctx context.Context, timeout time.Duration) error {
	reachable := make(chan struct{}, 1)
	dispose := m.events.Subscribe(func(e Event) {
		if e.Type == EventServerReachable {
			select {
			case reachable <- struct{}{}:
			default:
			}
		}
	})
	defer dispose()

	if !m.IsOffline() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-reachable:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
