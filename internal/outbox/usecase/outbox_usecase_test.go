package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/outbox/repository"
	"github.com/allisson/posoffline/internal/remote"
	"github.com/allisson/posoffline/internal/store"
	"github.com/allisson/posoffline/internal/testutil"
)

// MockDispatcher is a mock implementation of Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) DispatchOperation(ctx context.Context, op *domain.PendingOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

// flakyUnitOfWork fails every unit of work while fail is set.
type flakyUnitOfWork struct {
	store *store.Store
	fail  bool
}

func (f *flakyUnitOfWork) Do(ctx context.Context, tables []string, fn func(ctx context.Context) error) error {
	if f.fail {
		return apperrors.Wrap(apperrors.ErrStorage, "unit of work failed after 5 attempts")
	}
	return f.store.Do(ctx, tables, fn)
}

// reverseSealer is a reversible stand-in for a secrets keeper.
type reverseSealer struct{}

func (reverseSealer) Enabled() bool { return true }

func (reverseSealer) Seal(_ context.Context, plaintext []byte) ([]byte, error) {
	return reverse(plaintext), nil
}

func (reverseSealer) Open(_ context.Context, ciphertext []byte) ([]byte, error) {
	return reverse(ciphertext), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// evictingGuard always runs the eviction callback.
type evictingGuard struct {
	calls int
}

func (g *evictingGuard) EnsureCapacity(ctx context.Context, _ int64, evict func(ctx context.Context) error) error {
	g.calls++
	return evict(ctx)
}

func newUseCase(t *testing.T, s *store.Store, uow UnitOfWork, config Config) *OutboxUseCase {
	t.Helper()
	return NewOutboxUseCase(
		config,
		uow,
		repository.NewSQLiteOperationRepository(s),
		repository.NewSQLiteSyncErrorRepository(s),
		nil,
		nil,
		nil,
	)
}

func orderInput(correlationID string) EnqueueInput {
	return EnqueueInput{
		Kind:          domain.OperationKindOrder,
		Payload:       json.RawMessage(`{"amount":10}`),
		CorrelationID: correlationID,
	}
}

// testClock is a settable time source.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func byCorrelation(id string) interface{} {
	return mock.MatchedBy(func(op *domain.PendingOperation) bool { return op.CorrelationID == id })
}

func TestNewOutboxUseCase_Defaults(t *testing.T) {
	uc := NewOutboxUseCase(Config{}, nil, nil, nil, nil, nil, nil)

	assert.Equal(t, 5, uc.config.MaxAttempts)
	assert.Equal(t, 100, uc.config.BatchSize)
	assert.Equal(t, 1000, uc.config.StagingSize)
	assert.Equal(t, 5*time.Second, uc.config.RetryBaseDelay)
	assert.Equal(t, time.Hour, uc.config.RetryMaxDelay)
	assert.False(t, uc.config.Unreachable(apperrors.ErrTransport))
}

func TestOutboxUseCase_Enqueue_Validation(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{})
	ctx := context.Background()

	tests := []struct {
		name  string
		input EnqueueInput
	}{
		{"missing kind", EnqueueInput{Payload: json.RawMessage(`{}`)}},
		{"unknown kind", EnqueueInput{Kind: "refund", Payload: json.RawMessage(`{}`)}},
		{"missing payload", EnqueueInput{Kind: domain.OperationKindOrder}},
		{"scalar payload", EnqueueInput{Kind: domain.OperationKindOrder, Payload: json.RawMessage(`12`)}},
		{"bad correlation", EnqueueInput{Kind: domain.OperationKindOrder, Payload: json.RawMessage(`{}`), CorrelationID: "a b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := uc.Enqueue(ctx, tt.input)
			assert.Nil(t, op)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestOutboxUseCase_Enqueue_IdempotentCorrelation(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{})
	ctx := context.Background()

	first, err := uc.Enqueue(ctx, orderInput("order-1"))
	require.NoError(t, err)
	second, err := uc.Enqueue(ctx, orderInput("order-1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, testutil.CountRows(t, s, store.TablePendingOperations))
}

func TestOutboxUseCase_Enqueue_DefaultsCorrelationToID(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{})

	op, err := uc.Enqueue(context.Background(), orderInput(""))
	require.NoError(t, err)
	assert.Equal(t, op.ID.String(), op.CorrelationID)
	assert.Equal(t, uuid.Version(7), op.ID.Version())
	assert.False(t, op.Synced)
	assert.Zero(t, op.Attempts)
}

func TestOutboxUseCase_QueueSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := testutil.StoreConfig(t)

	s := testutil.OpenStore(t, cfg)
	uc := newUseCase(t, s, s, Config{})
	enqueued, err := uc.Enqueue(ctx, orderInput("order-1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := testutil.OpenStore(t, cfg)
	uc = newUseCase(t, reopened, reopened, Config{})

	count, err := uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.MatchedBy(func(op *domain.PendingOperation) bool {
		return op.ID == enqueued.ID && bytes.Equal(op.Payload, []byte(`{"amount":10}`))
	})).Return(nil).Once()

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	dispatcher.AssertExpectations(t)
}

func TestOutboxUseCase_Drain_SuccessDeletes(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{})
	ctx := context.Background()

	_, err := uc.Enqueue(ctx, orderInput("order-1"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-1")).Return(nil)

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, &domain.DrainResult{Processed: 1, Succeeded: 1}, result)
	assert.Equal(t, 0, testutil.CountRows(t, s, store.TablePendingOperations))
}

func TestOutboxUseCase_Drain_RetainSynced(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{RetainSynced: true})
	ctx := context.Background()

	op, err := uc.Enqueue(ctx, orderInput("order-1"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.Anything).Return(nil)

	_, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)

	stored, err := repository.NewSQLiteOperationRepository(s).GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.True(t, stored.Synced)
	assert.False(t, stored.DeadLetter)

	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Pending)
	assert.Equal(t, int64(1), stats.SyncedRetained)
}

func TestOutboxUseCase_Drain_FailureDoesNotBlockAndDeadLetters(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 5, BatchSize: 1})
	clock := newTestClock()
	uc.now = clock.Now
	ctx := context.Background()
	opRepo := repository.NewSQLiteOperationRepository(s)

	failing, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-a")).
		Return(apperrors.Wrap(apperrors.ErrTransport, "503 service unavailable"))
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-b")).Return(nil).Once()

	// First pass: b is delivered even though a, ahead of it, fails.
	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, &domain.DrainResult{Processed: 2, Succeeded: 1, Failed: 1}, result)

	stored, err := opRepo.GetByID(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
	assert.False(t, stored.Synced)
	require.NotNil(t, stored.LastAttempt)
	require.NotNil(t, stored.NextAttemptAt)
	assert.Equal(t, 5*time.Second, stored.NextAttemptAt.Sub(*stored.LastAttempt))

	for pass := 2; pass <= 5; pass++ {
		clock.Advance(time.Hour)
		result, err = uc.Drain(ctx, dispatcher)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, result.DeadLettered)

	stored, err = opRepo.GetByID(ctx, failing.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)
	assert.True(t, stored.Synced)
	assert.True(t, stored.DeadLetter)
	assert.Nil(t, stored.NextAttemptAt)

	errs, err := uc.ListErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, failing.ID, *errs[0].OperationID)
	assert.Equal(t, domain.ErrorCategoryTransport, errs[0].Category)
	assert.Equal(t, 5, errs[0].AttemptsAtFailure)

	// Done operations are never dispatched again.
	clock.Advance(time.Hour)
	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	dispatcher.AssertNumberOfCalls(t, "DispatchOperation", 6)

	count, err := uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestOutboxUseCase_Drain_BackoffDefersRetries(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 5, RetryBaseDelay: 5 * time.Second, RetryMaxDelay: time.Minute})
	clock := newTestClock()
	uc.now = clock.Now
	ctx := context.Background()

	op, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.Anything).
		Return(apperrors.Wrap(apperrors.ErrTransport, "500 internal server error"))

	// Back-to-back passes do not spend attempts while the operation waits.
	for range 10 {
		_, err := uc.Drain(ctx, dispatcher)
		require.NoError(t, err)
	}
	dispatcher.AssertNumberOfCalls(t, "DispatchOperation", 1)

	clock.Advance(4 * time.Second)
	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	clock.Advance(time.Second)
	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	// The second wait doubles.
	clock.Advance(5 * time.Second)
	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)

	clock.Advance(5 * time.Second)
	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	stored, err := repository.NewSQLiteOperationRepository(s).GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Attempts)
	assert.False(t, stored.DeadLetter)

	count, err := uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOutboxUseCase_Drain_AuthFailureStops(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 2})
	clock := newTestClock()
	uc.now = clock.Now
	ctx := context.Background()
	opRepo := repository.NewSQLiteOperationRepository(s)

	op, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-a")).
		Return(&remote.StatusError{Method: "POST", Path: "/sync/order", StatusCode: 401})
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-b")).Return(nil)

	result, err := uc.Drain(ctx, dispatcher)
	assert.ErrorIs(t, err, apperrors.ErrAuth)
	assert.Equal(t, &domain.DrainResult{Processed: 1, Failed: 1}, result)
	dispatcher.AssertNumberOfCalls(t, "DispatchOperation", 1)

	stored, err := opRepo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)

	// The rejected operation still reaches its ceiling instead of being retried forever.
	clock.Advance(time.Hour)
	_, err = uc.Drain(ctx, dispatcher)
	assert.ErrorIs(t, err, apperrors.ErrAuth)

	stored, err = opRepo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.True(t, stored.DeadLetter)

	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
}

func TestOutboxUseCase_Drain_ForbiddenIsPerItem(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 5})
	clock := newTestClock()
	uc.now = clock.Now
	ctx := context.Background()

	refused, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-a")).
		Return(&remote.StatusError{Method: "POST", Path: "/sync/order", StatusCode: 403})
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-b")).Return(nil).Once()

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, &domain.DrainResult{Processed: 2, Succeeded: 1, Failed: 1}, result)

	for range 20 {
		clock.Advance(time.Hour)
		_, err := uc.Drain(ctx, dispatcher)
		require.NoError(t, err)
	}

	stored, err := repository.NewSQLiteOperationRepository(s).GetByID(ctx, refused.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)
	assert.True(t, stored.DeadLetter)

	count, err := uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	dispatcher.AssertNumberOfCalls(t, "DispatchOperation", 6)
}

func TestOutboxUseCase_Drain_UnreachableStops(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 5, Unreachable: remote.IsConnectivityFailure})
	ctx := context.Background()
	opRepo := repository.NewSQLiteOperationRepository(s)

	first, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	second, err := uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-a")).
		Return(&remote.StatusError{Method: "POST", Path: "/sync/order", StatusCode: 503})

	result, err := uc.Drain(ctx, dispatcher)
	assert.ErrorIs(t, err, domain.ErrServerUnreachable)
	assert.ErrorIs(t, err, apperrors.ErrTransport)
	assert.Equal(t, &domain.DrainResult{Processed: 1, Failed: 1}, result)
	dispatcher.AssertNumberOfCalls(t, "DispatchOperation", 1)

	stored, err := opRepo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)

	untouched, err := opRepo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Zero(t, untouched.Attempts)
}

func TestOutboxUseCase_DeadLetteredSurvivesEviction(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 1, RetainSynced: true})
	ctx := context.Background()
	opRepo := repository.NewSQLiteOperationRepository(s)

	dead, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-a")).
		Return(apperrors.Wrap(apperrors.ErrInvalidInput, "422 unprocessable"))
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-b")).Return(nil)

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)
	assert.Equal(t, 2, testutil.CountRows(t, s, store.TablePendingOperations))

	t.Run("EvictHistory", func(t *testing.T) {
		require.NoError(t, uc.evictHistory(ctx))
		assert.Equal(t, 1, testutil.CountRows(t, s, store.TablePendingOperations))

		stored, err := opRepo.GetByID(ctx, dead.ID)
		require.NoError(t, err)
		assert.True(t, stored.DeadLetter)
	})

	t.Run("Sweep", func(t *testing.T) {
		swept, err := uc.Sweep(ctx, time.Now().Add(time.Hour), time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), swept.Operations)
		assert.Equal(t, 1, testutil.CountRows(t, s, store.TablePendingOperations))
	})

	replayed, err := uc.ReplayFailed(ctx, []uuid.UUID{dead.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)
}

func TestOutboxUseCase_ReplayFailed(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{MaxAttempts: 1})
	ctx := context.Background()

	op, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.Anything).
		Return(apperrors.Wrap(apperrors.ErrConflict, "409")).Once()
	dispatcher.On("DispatchOperation", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DeadLettered)

	_, err = uc.ReplayFailed(ctx, []uuid.UUID{uuid.Must(uuid.NewV7())})
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)

	replayed, err := uc.ReplayFailed(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	stored, err := repository.NewSQLiteOperationRepository(s).GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.False(t, stored.DeadLetter)
	assert.Zero(t, stored.Attempts)

	_, err = uc.ReplayFailed(ctx, []uuid.UUID{op.ID})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	result, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	// The sync error outlives the replay.
	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Errors)
}

func TestOutboxUseCase_StagesOnStorageFailure(t *testing.T) {
	s := testutil.SetupStore(t)
	uow := &flakyUnitOfWork{store: s, fail: true}
	uc := newUseCase(t, s, uow, Config{StagingSize: 2})
	ctx := context.Background()

	staged, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	assert.NotNil(t, staged)

	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Staged)

	count, err := uc.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	uow.fail = false
	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)

	stats, err = uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Staged)
	assert.Equal(t, int64(2), stats.Pending)
}

func TestOutboxUseCase_StagingIsBounded(t *testing.T) {
	s := testutil.SetupStore(t)
	uow := &flakyUnitOfWork{store: s, fail: true}
	uc := newUseCase(t, s, uow, Config{StagingSize: 2})
	ctx := context.Background()

	for _, id := range []string{"order-a", "order-b", "order-c"} {
		_, err := uc.Enqueue(ctx, orderInput(id))
		require.NoError(t, err)
	}

	stats, err := uc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Staged)
	assert.Equal(t, int64(1), stats.StagingEvicted)

	uow.fail = false
	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-b")).Return(nil)
	dispatcher.On("DispatchOperation", mock.Anything, byCorrelation("order-c")).Return(nil)

	result, err := uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	dispatcher.AssertExpectations(t)
}

func TestOutboxUseCase_SealsPayloadAtRest(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := NewOutboxUseCase(
		Config{},
		s,
		repository.NewSQLiteOperationRepository(s),
		repository.NewSQLiteSyncErrorRepository(s),
		nil,
		reverseSealer{},
		nil,
	)
	ctx := context.Background()

	op, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)
	assert.True(t, op.Sealed)

	var raw []byte
	require.NoError(t, s.DB().QueryRow("SELECT payload FROM pending_operations WHERE id = ?", op.ID.String()).Scan(&raw))
	assert.NotEqual(t, []byte(`{"amount":10}`), raw)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.MatchedBy(func(op *domain.PendingOperation) bool {
		return !op.Sealed && string(op.Payload) == `{"amount":10}`
	})).Return(nil)

	_, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	dispatcher.AssertExpectations(t)
}

func TestOutboxUseCase_EvictsHistoryBeforeWrites(t *testing.T) {
	s := testutil.SetupStore(t)
	guard := &evictingGuard{}
	uc := NewOutboxUseCase(
		Config{RetainSynced: true},
		s,
		repository.NewSQLiteOperationRepository(s),
		repository.NewSQLiteSyncErrorRepository(s),
		guard,
		nil,
		nil,
	)
	ctx := context.Background()

	_, err := uc.Enqueue(ctx, orderInput("order-a"))
	require.NoError(t, err)

	dispatcher := &MockDispatcher{}
	dispatcher.On("DispatchOperation", mock.Anything, mock.Anything).Return(nil)
	_, err = uc.Drain(ctx, dispatcher)
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CountRows(t, s, store.TablePendingOperations))

	_, err = uc.Enqueue(ctx, orderInput("order-b"))
	require.NoError(t, err)
	assert.Equal(t, 2, guard.calls)
	assert.Equal(t, 1, testutil.CountRows(t, s, store.TablePendingOperations))
}

func TestOutboxUseCase_RecordErrorAndSweep(t *testing.T) {
	s := testutil.SetupStore(t)
	uc := newUseCase(t, s, s, Config{})
	ctx := context.Background()

	now := time.Now()
	uc.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	require.NoError(t, uc.RecordError(ctx, &domain.SyncError{Message: "credential refresh failed"}))
	uc.now = func() time.Time { return now }
	require.NoError(t, uc.RecordError(ctx, &domain.SyncError{Message: "metadata push failed"}))

	errs, err := uc.ListErrors(ctx, 0)
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, domain.ErrorCategoryUnknown, errs[0].Category)

	result, err := uc.Sweep(ctx, now.Add(-30*24*time.Hour), now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{Operations: 0, Errors: 1}, result)
}
