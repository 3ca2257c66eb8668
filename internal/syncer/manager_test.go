package syncer

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
	"github.com/allisson/posoffline/internal/connectivity"
	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
	apperrors "github.com/allisson/posoffline/internal/errors"
	outboxDomain "github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/outbox/repository"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
	"github.com/allisson/posoffline/internal/pubsub"
	"github.com/allisson/posoffline/internal/remote"
	"github.com/allisson/posoffline/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

// recordingMetrics tallies what the manager reports.
type recordingMetrics struct {
	mu         sync.Mutex
	operations map[string]int
	items      map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{operations: make(map[string]int), items: make(map[string]int)}
}

func (r *recordingMetrics) RecordOperation(ctx context.Context, domain, operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[domain+"/"+operation+"/"+status]++
}

func (r *recordingMetrics) RecordDuration(ctx context.Context, domain, operation string, d time.Duration, status string) {
}

func (r *recordingMetrics) RecordItems(ctx context.Context, domain, item string, count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[domain+"/"+item] += count
}

func (r *recordingMetrics) snapshotOperations() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.operations)
}

func (r *recordingMetrics) snapshotItems() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.items)
}

// MockRemote is a mock implementation of Remote.
type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) DispatchOperation(ctx context.Context, op *outboxDomain.PendingOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockRemote) PushSessionMetadata(ctx context.Context, metadata remote.SessionMetadata) error {
	args := m.Called(ctx, metadata)
	return args.Error(0)
}

func (m *MockRemote) FetchCredentials(ctx context.Context) ([]*credentialDomain.RemoteCredential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credentialDomain.RemoteCredential), args.Error(1)
}

func (m *MockRemote) FetchReferenceData(ctx context.Context, entityType string) ([]map[string]any, error) {
	args := m.Called(ctx, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

// MockCredentials is a mock implementation of Credentials.
type MockCredentials struct {
	mock.Mock
}

func (m *MockCredentials) RefreshFromRemote(
	ctx context.Context,
	records []*credentialDomain.RemoteCredential,
) (*credentialDomain.RefreshResult, error) {
	args := m.Called(ctx, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credentialDomain.RefreshResult), args.Error(1)
}

// MockCatalog is a mock implementation of Catalog.
type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) Replace(
	ctx context.Context,
	t catalogDomain.EntityType,
	records []map[string]any,
) (*catalogUsecase.ReplaceResult, error) {
	args := m.Called(ctx, t, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogUsecase.ReplaceResult), args.Error(1)
}

type fakeMonitor struct {
	offline  atomic.Bool
	rechecks atomic.Int32
	events   *pubsub.Broker[connectivity.Event]
}

func newFakeMonitor(offline bool) *fakeMonitor {
	m := &fakeMonitor{events: pubsub.NewBroker[connectivity.Event]()}
	m.offline.Store(offline)
	return m
}

func (m *fakeMonitor) IsOffline() bool { return m.offline.Load() }

func (m *fakeMonitor) Recheck(context.Context) error {
	m.rechecks.Add(1)
	return connectivity.ErrNetworkDown
}

func (m *fakeMonitor) Subscribe(fn func(connectivity.Event)) pubsub.Disposer {
	return m.events.Subscribe(fn)
}

func (m *fakeMonitor) setReachable() {
	m.offline.Store(false)
	m.events.Publish(connectivity.Event{Type: connectivity.EventServerReachable, State: connectivity.StateReachable})
}

type fakeSessions struct {
	id    string
	swept atomic.Int32
}

func (s *fakeSessions) CurrentSessionID() string { return s.id }

func (s *fakeSessions) Sweep(context.Context, time.Time) (int64, error) {
	s.swept.Add(1)
	return 2, nil
}

func newQueue(t *testing.T) *outboxUsecase.OutboxUseCase {
	t.Helper()
	s := testutil.SetupStore(t)
	return outboxUsecase.NewOutboxUseCase(
		outboxUsecase.Config{MaxAttempts: 5, Unreachable: remote.IsConnectivityFailure},
		s,
		repository.NewSQLiteOperationRepository(s),
		repository.NewSQLiteSyncErrorRepository(s),
		nil,
		nil,
		nil,
	)
}

func enqueue(t *testing.T, q Queue, correlationID string) {
	t.Helper()
	_, err := q.Enqueue(context.Background(), outboxUsecase.EnqueueInput{
		Kind:          outboxDomain.OperationKindOrder,
		Payload:       json.RawMessage(`{"amount":10}`),
		CorrelationID: correlationID,
	})
	require.NoError(t, err)
}

func byCorrelation(id string) interface{} {
	return mock.MatchedBy(func(op *outboxDomain.PendingOperation) bool { return op.CorrelationID == id })
}

func quietRemote() *MockRemote {
	r := &MockRemote{}
	r.On("FetchReferenceData", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)
	return r
}

func TestManager_ForceSyncNowOffline(t *testing.T) {
	m := NewManager(Config{}, newQueue(t), &MockRemote{}, newFakeMonitor(true), nil, nil, nil, nil, nil)

	_, err := m.ForceSyncNow(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrCannotSyncOffline)
	assert.Equal(t, StateIdle, m.State())
}

func TestManager_PhasesAreIndependent(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t)
	enqueue(t, queue, "bad")
	enqueue(t, queue, "good")

	remoteAPI := &MockRemote{}
	remoteAPI.On("DispatchOperation", mock.Anything, byCorrelation("bad")).
		Return(&remote.StatusError{Method: "POST", Path: "/sync/order", StatusCode: 422})
	remoteAPI.On("DispatchOperation", mock.Anything, byCorrelation("good")).Return(nil)
	remoteAPI.On("PushSessionMetadata", mock.Anything, mock.MatchedBy(func(md remote.SessionMetadata) bool {
		return md.SessionID == "session-1" && md.PendingCount == 1
	})).Return(apperrors.Wrap(apperrors.ErrTransport, "session endpoint down"))

	records := []*credentialDomain.RemoteCredential{{ID: 1, Login: "alice", SecretHash: "h"}}
	remoteAPI.On("FetchCredentials", mock.Anything).Return(records, nil)

	products := []map[string]any{{"id": 1, "name": "Espresso"}}
	remoteAPI.On("FetchReferenceData", mock.Anything, "product").Return(products, nil)
	remoteAPI.On("FetchReferenceData", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)

	credentials := &MockCredentials{}
	credentials.On("RefreshFromRemote", mock.Anything, records).
		Return(&credentialDomain.RefreshResult{Cached: 1}, nil)

	catalog := &MockCatalog{}
	catalog.On("Replace", mock.Anything, catalogDomain.EntityTypeProduct, products).
		Return(&catalogUsecase.ReplaceResult{Type: catalogDomain.EntityTypeProduct, Stored: 1}, nil)

	sessions := &fakeSessions{id: "session-1"}

	recorder := newRecordingMetrics()
	m := NewManager(Config{}, queue, remoteAPI, newFakeMonitor(false), credentials, catalog, sessions, recorder, nil)

	result, err := m.ForceSyncNow(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Drain.Processed)
	assert.Equal(t, 1, result.Drain.Succeeded)
	assert.Equal(t, 1, result.Drain.Failed)
	assert.False(t, result.MetadataPushed)
	assert.Equal(t, 1, result.Credentials.Cached)
	assert.Equal(t, map[catalogDomain.EntityType]int{catalogDomain.EntityTypeProduct: 1}, result.Entities)
	assert.NotNil(t, result.Sweep)
	assert.Equal(t, int64(2), result.SessionsEvicted)
	assert.Equal(t, int32(1), sessions.swept.Load())

	require.Len(t, result.PhaseErrors, 1)
	assert.ErrorIs(t, result.PhaseErrors[PhaseSessionMetadata], apperrors.ErrTransport)
	assert.True(t, result.Failed())
	assert.Contains(t, result.ErrorMessages()[string(PhaseSessionMetadata)], "session endpoint down")

	syncErrors, err := queue.ListErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, syncErrors, 1)
	assert.Nil(t, syncErrors[0].OperationID)
	assert.Equal(t, outboxDomain.ErrorCategoryTransport, syncErrors[0].Category)
	assert.Equal(t, "session_metadata", syncErrors[0].Context["phase"])

	count, err := queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	status := m.Status()
	assert.Equal(t, int64(1), status.Passes)
	assert.Same(t, result, status.LastPass)

	assert.Equal(t, map[string]int{
		"sync/phase_drain/success":             1,
		"sync/phase_session_metadata/error":    1,
		"sync/phase_reference_refresh/success": 1,
		"sync/phase_retention_sweep/success":   1,
		"sync/sync_pass/error":                 1,
	}, recorder.snapshotOperations())
	assert.Equal(t, map[string]int{
		"catalog/product":   1,
		"credential/cached": 1,
	}, recorder.snapshotItems())

	remoteAPI.AssertExpectations(t)
	credentials.AssertExpectations(t)
	catalog.AssertExpectations(t)
}

func TestManager_ReferenceRefreshFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t)

	remoteAPI := &MockRemote{}
	remoteAPI.On("FetchCredentials", mock.Anything).
		Return(nil, apperrors.Wrap(apperrors.ErrTransport, "credentials unavailable"))
	remoteAPI.On("FetchReferenceData", mock.Anything, mock.Anything).Return(nil, apperrors.ErrNotFound)

	m := NewManager(Config{}, queue, remoteAPI, newFakeMonitor(false), &MockCredentials{}, &MockCatalog{}, nil, nil, nil)

	result, err := m.ForceSyncNow(ctx)
	require.NoError(t, err)
	assert.Contains(t, result.PhaseErrors, PhaseReferenceRefresh)
	assert.NotContains(t, result.PhaseErrors, PhaseDrain)
	assert.NotContains(t, result.PhaseErrors, PhaseRetentionSweep)
	assert.Empty(t, result.Entities)

	syncErrors, err := queue.ListErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, syncErrors, 1)
	assert.Equal(t, "reference_refresh", syncErrors[0].Context["phase"])
}

func TestManager_UnreachableDrainRechecks(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t)
	enqueue(t, queue, "first")
	enqueue(t, queue, "second")

	remoteAPI := quietRemote()
	remoteAPI.On("DispatchOperation", mock.Anything, byCorrelation("first")).
		Return(&remote.StatusError{Method: "POST", Path: "/sync/order", StatusCode: 503})

	monitor := newFakeMonitor(false)
	m := NewManager(Config{}, queue, remoteAPI, monitor, nil, nil, nil, nil, nil)

	result, err := m.ForceSyncNow(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, result.PhaseErrors[PhaseDrain], outboxDomain.ErrServerUnreachable)
	assert.Equal(t, &outboxDomain.DrainResult{Processed: 1, Failed: 1}, result.Drain)
	assert.Equal(t, int32(1), monitor.rechecks.Load())
	remoteAPI.AssertNumberOfCalls(t, "DispatchOperation", 1)

	count, err := queue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestManager_TransportOutageDoesNotDeadLetter(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t)

	remoteAPI := quietRemote()
	remoteAPI.On("DispatchOperation", mock.Anything, mock.Anything).
		Return(apperrors.Wrap(apperrors.ErrTransport, "connection refused"))

	monitor := newFakeMonitor(false)
	m := NewManager(Config{Interval: time.Hour, Debounce: 20 * time.Millisecond},
		queue, remoteAPI, monitor, nil, nil, nil, nil, nil)
	m.Start()

	for i := range 12 {
		_, err := m.AddToSyncQueue(ctx, outboxDomain.OperationKindOrder, json.RawMessage(`{"n":1}`),
			"outage-"+string(rune('a'+i)))
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return m.State() == StateIdle }, time.Second, 5*time.Millisecond)
	m.Destroy()

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DeadLettered)
	assert.Equal(t, int64(12), stats.Pending)
	assert.Greater(t, monitor.rechecks.Load(), int32(0))

	// Each operation waits out its retry delay after a failed attempt.
	calls := map[string]int{}
	for _, call := range remoteAPI.Calls {
		if call.Method == "DispatchOperation" {
			calls[call.Arguments.Get(1).(*outboxDomain.PendingOperation).CorrelationID]++
		}
	}
	for correlationID, n := range calls {
		assert.Equal(t, 1, n, correlationID)
	}
}

func TestManager_ReentrancyGuard(t *testing.T) {
	ctx := context.Background()
	queue := newQueue(t)
	enqueue(t, queue, "slow")

	entered := make(chan struct{})
	release := make(chan struct{})
	remoteAPI := quietRemote()
	remoteAPI.On("DispatchOperation", mock.Anything, byCorrelation("slow")).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(nil)

	m := NewManager(Config{}, queue, remoteAPI, newFakeMonitor(false), nil, nil, nil, nil, nil)

	first := make(chan error, 1)
	go func() {
		_, err := m.ForceSyncNow(ctx)
		first <- err
	}()

	<-entered
	assert.Equal(t, StateSyncing, m.State())

	_, err := m.ForceSyncNow(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, StateIdle, m.State())
	remoteAPI.AssertNumberOfCalls(t, "DispatchOperation", 1)
}

func TestManager_Events(t *testing.T) {
	queue := newQueue(t)
	remoteAPI := quietRemote()
	m := NewManager(Config{}, queue, remoteAPI, newFakeMonitor(false), nil, nil, nil, nil, nil)

	var got []EventType
	dispose := m.Subscribe(func(e Event) { got = append(got, e.Type) })
	defer dispose()

	_, err := m.ForceSyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventSyncStarted, EventSyncCompleted}, got)

	got = nil
	remoteAPI.ExpectedCalls = nil
	remoteAPI.On("FetchReferenceData", mock.Anything, mock.Anything).
		Return(nil, apperrors.Wrap(apperrors.ErrTransport, "down"))
	m.catalog = &MockCatalog{}

	_, err = m.ForceSyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventSyncStarted, EventSyncFailed}, got)
}

func TestManager_SyncsWhenServerBecomesReachable(t *testing.T) {
	queue := newQueue(t)
	enqueue(t, queue, "order-1")

	remoteAPI := quietRemote()
	remoteAPI.On("DispatchOperation", mock.Anything, byCorrelation("order-1")).Return(nil)

	monitor := newFakeMonitor(true)
	m := NewManager(Config{Interval: time.Hour}, queue, remoteAPI, monitor, nil, nil, nil, nil, nil)
	m.Start()
	defer m.Destroy()

	assert.Never(t, func() bool { return m.Status().Passes > 0 }, 30*time.Millisecond, 5*time.Millisecond)

	monitor.setReachable()
	require.Eventually(t, func() bool {
		count, err := queue.CountPending(context.Background())
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond)
	remoteAPI.AssertNumberOfCalls(t, "DispatchOperation", 1)
}

func TestManager_AddToSyncQueueDebounces(t *testing.T) {
	queue := newQueue(t)
	remoteAPI := quietRemote()
	remoteAPI.On("DispatchOperation", mock.Anything, mock.Anything).Return(nil)

	monitor := newFakeMonitor(true)
	m := NewManager(Config{Interval: time.Hour, Debounce: 20 * time.Millisecond},
		queue, remoteAPI, monitor, nil, nil, nil, nil, nil)
	m.Start()
	defer m.Destroy()

	ctx := context.Background()
	_, err := m.AddToSyncQueue(ctx, outboxDomain.OperationKindOrder, json.RawMessage(`{"n":0}`), "offline-op")
	require.NoError(t, err)
	assert.Never(t, func() bool { return m.Status().Passes > 0 }, 40*time.Millisecond, 5*time.Millisecond)

	monitor.offline.Store(false)
	for i := range 5 {
		_, err := m.AddToSyncQueue(ctx, outboxDomain.OperationKindPayment, json.RawMessage(`{"n":1}`),
			"burst-"+string(rune('a'+i)))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		count, err := queue.CountPending(ctx)
		return err == nil && count == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, m.Status().Passes, int64(2))
	remoteAPI.AssertNumberOfCalls(t, "DispatchOperation", 6)

	_, err = m.AddToSyncQueue(ctx, outboxDomain.OperationKind("refund"), json.RawMessage(`{}`), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestManager_DestroyIsIdempotent(t *testing.T) {
	queue := newQueue(t)
	monitor := newFakeMonitor(false)
	m := NewManager(Config{Interval: time.Hour}, queue, quietRemote(), monitor, nil, nil, nil, nil, nil)

	m.Start()
	m.Start()
	assert.Equal(t, 1, monitor.events.Len())
	require.Eventually(t, func() bool { return m.Status().Passes == 1 }, time.Second, time.Millisecond)

	m.Destroy()
	m.Destroy()
	assert.Equal(t, 0, monitor.events.Len())
	assert.Equal(t, int64(0), m.Status().Passes)
	assert.Nil(t, m.Status().LastPass)

	m.Start()
	assert.Equal(t, 1, monitor.events.Len())
	m.Destroy()
}
