// Package syncer implements the sync manager: the reconciliation loop that
// drains the pending-operation queue, pushes session metadata, refreshes
// cached reference data and prunes old records whenever the server is
// reachable.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/connectivity"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/metrics"
	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
	"github.com/allisson/posoffline/internal/pubsub"
	"github.com/allisson/posoffline/internal/remote"
)

// ErrSyncInProgress is returned by ForceSyncNow while another pass runs.
var ErrSyncInProgress = apperrors.Wrap(apperrors.ErrConflict, "sync already in progress")

// Config holds sync manager settings.
type Config struct {
	Interval           time.Duration
	Debounce           time.Duration
	OperationRetention time.Duration
	SessionRetention   time.Duration
	ErrorRetention     time.Duration
	// EntityTypes are the reference sets refreshed on each pass.
	EntityTypes []catalogDomain.EntityType
}

// Manager is the sync manager.
type Manager struct {
	config      Config
	queue       Queue
	remote      Remote
	monitor     Monitor
	credentials Credentials
	catalog     Catalog
	sessions    Sessions
	metrics     metrics.BusinessMetrics
	events      *pubsub.Broker[Event]
	logger      *slog.Logger
	now         func() time.Time

	syncing atomic.Bool
	passes  atomic.Int64

	resultMu sync.Mutex
	last     *PassResult

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	dispose   pubsub.Disposer
	wake      chan struct{}
	debounce  chan struct{}
	reset     chan struct{}
}

// NewManager creates a stopped Manager. credentials, catalog, sessions and m may be nil.
func NewManager(
	config Config,
	queue Queue,
	remote Remote,
	monitor Monitor,
	credentials Credentials,
	catalog Catalog,
	sessions Sessions,
	m metrics.BusinessMetrics,
	logger *slog.Logger,
) *Manager {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.Debounce <= 0 {
		config.Debounce = 2 * time.Second
	}
	if config.OperationRetention <= 0 {
		config.OperationRetention = 30 * 24 * time.Hour
	}
	if config.SessionRetention <= 0 {
		config.SessionRetention = 7 * 24 * time.Hour
	}
	if config.ErrorRetention <= 0 {
		config.ErrorRetention = 7 * 24 * time.Hour
	}
	if config.EntityTypes == nil {
		config.EntityTypes = catalogDomain.EntityTypes
	}
	if m == nil {
		m = metrics.NewNoOpBusinessMetrics()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Manager{
		config:      config,
		queue:       queue,
		remote:      remote,
		monitor:     monitor,
		credentials: credentials,
		catalog:     catalog,
		sessions:    sessions,
		metrics:     m,
		events:      pubsub.NewBroker[Event](),
		logger:      logger,
		now:         time.Now,
		wake:        make(chan struct{}, 1),
		debounce:    make(chan struct{}, 1),
		reset:       make(chan struct{}, 1),
	}
}

// Start subscribes to connectivity events and starts the periodic schedule.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.dispose = m.monitor.Subscribe(func(e connectivity.Event) {
		if e.Type == connectivity.EventServerReachable {
			notify(m.wake)
		}
	})

	go m.loop(ctx, m.done)

	if !m.monitor.IsOffline() {
		notify(m.wake)
	}
	m.logger.Info("sync manager started", slog.Duration("interval", m.config.Interval))
}

// Destroy cancels the schedule and any in-flight pass, unsubscribes from the
// monitor and resets counters. It is safe to call more than once.
func (m *Manager) Destroy() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		m.dispose()
		m.cancel()
		<-m.done
		m.cancel = nil
		m.done = nil
		m.dispose = nil
		m.logger.Info("sync manager stopped")
	}

	m.passes.Store(0)
	m.resultMu.Lock()
	m.last = nil
	m.resultMu.Unlock()
	drain(m.wake)
	drain(m.debounce)
	drain(m.reset)
}

func (m *Manager) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	debounce := time.NewTimer(m.config.Debounce)
	debounce.Stop()
	defer debounce.Stop()
	armed := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.reset:
			ticker.Reset(m.config.Interval)
		case <-m.debounce:
			if !armed {
				armed = true
				debounce.Reset(m.config.Debounce)
			}
		case <-debounce.C:
			armed = false
			m.runIfReachable(ctx)
		case <-m.wake:
			m.runIfReachable(ctx)
		case <-ticker.C:
			m.runIfReachable(ctx)
		}
	}
}

func (m *Manager) runIfReachable(ctx context.Context) {
	if m.monitor.IsOffline() {
		return
	}
	_, _ = m.runPass(ctx)
}

// AddToSyncQueue persists a new operation and, when the server is
// reachable, schedules a debounced sync pass.
func (m *Manager) AddToSyncQueue(
	ctx context.Context,
	kind outboxDomain.OperationKind,
	payload json.RawMessage,
	correlationID string,
) (*outboxDomain.PendingOperation, error) {
	op, err := m.queue.Enqueue(ctx, outboxUsecase.EnqueueInput{
		Kind:          kind,
		Payload:       payload,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	if !m.monitor.IsOffline() {
		notify(m.debounce)
	}
	return op, nil
}

// ForceSyncNow runs a pass immediately and restarts the periodic schedule.
// It fails with ErrCannotSyncOffline when the server is unreachable and with
// ErrSyncInProgress when a pass is already running.
func (m *Manager) ForceSyncNow(ctx context.Context) (*PassResult, error) {
	if m.monitor.IsOffline() {
		return nil, apperrors.ErrCannotSyncOffline
	}
	notify(m.reset)

	result, ran := m.runPass(ctx)
	if !ran {
		return nil, ErrSyncInProgress
	}
	return result, nil
}

// State reports whether a pass is running.
func (m *Manager) State() State {
	if m.syncing.Load() {
		return StateSyncing
	}
	return StateIdle
}

// Status returns the manager state, the pass count and the last pass.
func (m *Manager) Status() Status {
	m.resultMu.Lock()
	defer m.resultMu.Unlock()
	return Status{State: m.State(), Passes: m.passes.Load(), LastPass: m.last}
}

// Subscribe registers fn for sync events.
func (m *Manager) Subscribe(fn func(Event)) pubsub.Disposer {
	return m.events.Subscribe(fn)
}

// runPass runs the four phases in order. It returns false without doing
// anything when another pass is in flight.
func (m *Manager) runPass(ctx context.Context) (*PassResult, bool) {
	if !m.syncing.CompareAndSwap(false, true) {
		m.logger.Debug("sync pass already running, skipping")
		return nil, false
	}
	defer m.syncing.Store(false)

	start := m.now()
	result := &PassResult{StartedAt: start.UTC(), PhaseErrors: make(map[Phase]error)}
	m.events.Publish(Event{Type: EventSyncStarted, At: result.StartedAt})

	m.phase(ctx, result, PhaseDrain, m.drain)
	m.phase(ctx, result, PhaseSessionMetadata, m.pushMetadata)
	m.phase(ctx, result, PhaseReferenceRefresh, m.refreshReference)
	m.phase(ctx, result, PhaseRetentionSweep, m.sweep)

	result.FinishedAt = m.now().UTC()
	m.passes.Add(1)
	m.resultMu.Lock()
	m.last = result
	m.resultMu.Unlock()

	status := "success"
	eventType := EventSyncCompleted
	if result.Failed() {
		status = "error"
		eventType = EventSyncFailed
	}
	m.metrics.RecordOperation(ctx, "sync", "sync_pass", status)
	m.metrics.RecordDuration(ctx, "sync", "sync_pass", time.Since(start), status)

	m.logger.Info("sync pass finished",
		slog.String("status", status),
		slog.Duration("duration", result.FinishedAt.Sub(result.StartedAt)),
		slog.Any("phase_errors", result.ErrorMessages()),
	)
	m.events.Publish(Event{Type: eventType, Result: result, At: result.FinishedAt})
	return result, true
}

func (m *Manager) phase(
	ctx context.Context,
	result *PassResult,
	name Phase,
	fn func(ctx context.Context, result *PassResult) error,
) {
	status := "success"
	if err := fn(ctx, result); err != nil {
		status = "error"
		result.PhaseErrors[name] = err
		m.logger.Warn("sync phase failed", slog.String("phase", string(name)), slog.Any("error", err))
	}
	m.metrics.RecordOperation(ctx, "sync", "phase_"+string(name), status)
}

// drain pushes due operations. A drain cut short by an unreachable server
// makes the monitor probe again so its state catches up before the next pass.
func (m *Manager) drain(ctx context.Context, result *PassResult) error {
	drained, err := m.queue.Drain(ctx, m.remote)
	result.Drain = drained
	if apperrors.Is(err, outboxDomain.ErrServerUnreachable) && ctx.Err() == nil {
		if recheckErr := m.monitor.Recheck(ctx); recheckErr != nil {
			m.logger.Warn("server unreachable during drain",
				slog.Bool("offline", m.monitor.IsOffline()),
				slog.Any("error", recheckErr),
			)
		}
	}
	return err
}

func (m *Manager) pushMetadata(ctx context.Context, result *PassResult) error {
	if m.sessions == nil {
		return nil
	}
	sessionID := m.sessions.CurrentSessionID()
	if sessionID == "" {
		return nil
	}

	pending, err := m.queue.CountPending(ctx)
	if err != nil {
		return err
	}

	err = m.remote.PushSessionMetadata(ctx, remote.SessionMetadata{
		SessionID:    sessionID,
		PendingCount: pending,
		Timestamp:    m.now().UTC(),
	})
	if err != nil {
		m.recordError(ctx, PhaseSessionMetadata, err)
		return err
	}
	result.MetadataPushed = true
	return nil
}

func (m *Manager) refreshReference(ctx context.Context, result *PassResult) error {
	var errs []error

	if m.credentials != nil {
		if err := m.refreshCredentials(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}

	if m.catalog != nil {
		result.Entities = make(map[catalogDomain.EntityType]int)
		for _, t := range m.config.EntityTypes {
			records, err := m.remote.FetchReferenceData(ctx, string(t))
			if apperrors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			replaced, err := m.catalog.Replace(ctx, t, records)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			result.Entities[t] = replaced.Stored
			m.metrics.RecordItems(ctx, "catalog", string(t), replaced.Stored)
		}
	}

	err := apperrors.Join(errs...)
	if err != nil {
		m.recordError(ctx, PhaseReferenceRefresh, err)
	}
	return err
}

func (m *Manager) refreshCredentials(ctx context.Context, result *PassResult) error {
	records, err := m.remote.FetchCredentials(ctx)
	if err != nil {
		return err
	}
	refreshed, err := m.credentials.RefreshFromRemote(ctx, records)
	result.Credentials = refreshed
	if err != nil {
		return err
	}
	if refreshed != nil {
		m.metrics.RecordItems(ctx, "credential", "cached", refreshed.Cached)
		m.metrics.RecordItems(ctx, "credential", "failed", refreshed.Failed)
	}
	if refreshed != nil && len(refreshed.Errors) > 0 {
		return apperrors.Join(refreshed.Errors...)
	}
	return nil
}

func (m *Manager) sweep(ctx context.Context, result *PassResult) error {
	now := m.now()
	swept, err := m.queue.Sweep(ctx, now.Add(-m.config.OperationRetention), now.Add(-m.config.ErrorRetention))
	if err != nil {
		return err
	}
	result.Sweep = swept

	if m.sessions == nil {
		return nil
	}
	evicted, err := m.sessions.Sweep(ctx, now.Add(-m.config.SessionRetention))
	result.SessionsEvicted = evicted
	return err
}

// recordError appends a SyncError without an operation back-reference.
func (m *Manager) recordError(ctx context.Context, phase Phase, cause error) {
	if ctx.Err() != nil {
		return
	}
	err := m.queue.RecordError(ctx, &outboxDomain.SyncError{
		Message:  cause.Error(),
		Category: outboxDomain.CategorizeError(cause),
		Context:  map[string]any{"phase": string(phase)},
	})
	if err != nil {
		m.logger.Warn("failed to record sync error", slog.String("phase", string(phase)), slog.Any("error", err))
	}
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
