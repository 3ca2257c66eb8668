package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/testutil"
)

func newOperation(createdAt time.Time) *domain.PendingOperation {
	id := uuid.Must(uuid.NewV7())
	return &domain.PendingOperation{
		ID:            id,
		Kind:          domain.OperationKindOrder,
		Payload:       []byte(`{"amount":10}`),
		CorrelationID: id.String(),
		CreatedAt:     createdAt.UTC().Truncate(time.Millisecond),
	}
}

func TestSQLiteOperationRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	op := newOperation(time.Now())
	require.NoError(t, repo.Create(ctx, op))

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, op, got)

	byCorrelation, err := repo.GetByCorrelationID(ctx, op.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, op.ID, byCorrelation.ID)

	_, err = repo.GetByID(ctx, uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = repo.GetByCorrelationID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)
}

func TestSQLiteOperationRepository_CreateDuplicateCorrelation(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	first := newOperation(time.Now())
	require.NoError(t, repo.Create(ctx, first))

	second := newOperation(time.Now())
	second.CorrelationID = first.CorrelationID
	assert.ErrorIs(t, repo.Create(ctx, second), apperrors.ErrConflict)
}

func TestSQLiteOperationRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	op := newOperation(time.Now())
	require.NoError(t, repo.Create(ctx, op))

	now := time.Now().UTC().Truncate(time.Millisecond)
	next := now.Add(10 * time.Second)
	msg := "503 service unavailable"
	op.Attempts = 2
	op.LastAttempt = &now
	op.NextAttemptAt = &next
	op.LastError = &msg
	require.NoError(t, repo.Update(ctx, op))

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	require.NotNil(t, got.LastAttempt)
	assert.Equal(t, now, *got.LastAttempt)
	require.NotNil(t, got.NextAttemptAt)
	assert.Equal(t, next, *got.NextAttemptAt)
	assert.Equal(t, msg, *got.LastError)

	require.NoError(t, repo.Delete(ctx, op.ID))
	_, err = repo.GetByID(ctx, op.ID)
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)
}

func TestSQLiteOperationRepository_ListDuePaging(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	base := time.Now().Add(-time.Hour)
	var ops []*domain.PendingOperation
	for i := range 5 {
		op := newOperation(base.Add(time.Duration(i) * time.Second))
		require.NoError(t, repo.Create(ctx, op))
		ops = append(ops, op)
	}
	ops[2].Synced = true
	require.NoError(t, repo.Update(ctx, ops[2]))

	now := time.Now()
	page, err := repo.ListDue(ctx, now, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ops[0].ID, page[0].ID)
	assert.Equal(t, ops[1].ID, page[1].ID)

	last := page[1]
	page, err = repo.ListDue(ctx, now, &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ops[3].ID, page[0].ID)
	assert.Equal(t, ops[4].ID, page[1].ID)

	count, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestSQLiteOperationRepository_ListDueSkipsBackingOff(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	now := time.Now().UTC().Truncate(time.Millisecond)
	waiting := newOperation(now.Add(-2 * time.Minute))
	later := now.Add(time.Minute)
	waiting.Attempts = 1
	waiting.NextAttemptAt = &later

	due := newOperation(now.Add(-time.Minute))
	earlier := now.Add(-time.Second)
	due.Attempts = 1
	due.NextAttemptAt = &earlier

	fresh := newOperation(now)
	for _, op := range []*domain.PendingOperation{waiting, due, fresh} {
		require.NoError(t, repo.Create(ctx, op))
	}

	page, err := repo.ListDue(ctx, now, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, due.ID, page[0].ID)
	assert.Equal(t, fresh.ID, page[1].ID)

	page, err = repo.ListDue(ctx, later, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)

	count, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestSQLiteOperationRepository_StatsAndRetention(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteOperationRepository(testutil.SetupStore(t))

	old := newOperation(time.Now().Add(-40 * 24 * time.Hour))
	old.Synced = true
	dead := newOperation(time.Now().Add(-40 * 24 * time.Hour))
	dead.Synced = true
	dead.DeadLetter = true
	pending := newOperation(time.Now())
	for _, op := range []*domain.PendingOperation{old, dead, pending} {
		require.NoError(t, repo.Create(ctx, op))
	}

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.DeadLettered)
	assert.Equal(t, int64(1), stats.SyncedRetained)

	deadLettered, err := repo.ListDeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, deadLettered, 1)
	assert.Equal(t, dead.ID, deadLettered[0].ID)

	removed, err := repo.DeleteSyncedBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, domain.ErrOperationNotFound)

	kept, err := repo.GetByID(ctx, dead.ID)
	require.NoError(t, err)
	assert.True(t, kept.DeadLetter)

	removed, err = repo.DeleteSyncedBefore(ctx, time.Now().Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}
