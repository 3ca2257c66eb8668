package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/testutil"
)

func TestSQLiteSyncErrorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSyncErrorRepository(testutil.SetupStore(t))

	opID := uuid.Must(uuid.NewV7())
	older := &domain.SyncError{
		OperationID:       &opID,
		Message:           "503 service unavailable",
		Category:          domain.ErrorCategoryTransport,
		AttemptsAtFailure: 5,
		Context:           map[string]any{"kind": "order"},
		Timestamp:         time.Now().Add(-10 * 24 * time.Hour).UTC().Truncate(time.Millisecond),
	}
	newer := &domain.SyncError{
		Message:   "credential refresh failed",
		Category:  domain.ErrorCategoryUnknown,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	assert.NotZero(t, older.ID)
	assert.Greater(t, newer.ID, older.ID)

	all, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID)
	assert.Nil(t, all[0].OperationID)
	assert.Equal(t, map[string]any{}, all[0].Context)
	assert.Equal(t, older, all[1])

	byOp, err := repo.ListByOperation(ctx, opID)
	require.NoError(t, err)
	require.Len(t, byOp, 1)
	assert.Equal(t, older.ID, byOp[0].ID)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := repo.DeleteBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
