// Package repository provides SQLite persistence for pending operations and sync errors.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/store"
)

const indexCorrelationID = "by_correlation_id"

var operationTable = store.Table[domain.PendingOperation]{
	Name: store.TablePendingOperations,
	Key:  "id",
	Columns: []string{
		"id", "kind", "payload", "sealed", "correlation_id", "created_at",
		"synced", "dead_letter", "attempts", "last_attempt", "last_error", "next_attempt_at",
	},
	Indexes: map[string]string{indexCorrelationID: "correlation_id"},
	OrderBy: "created_at, id",
	Values: func(op *domain.PendingOperation) ([]any, error) {
		return []any{
			op.ID.String(),
			string(op.Kind),
			op.Payload,
			op.Sealed,
			op.CorrelationID,
			op.CreatedAt.UnixMilli(),
			op.Synced,
			op.DeadLetter,
			op.Attempts,
			nullableMillis(op.LastAttempt),
			op.LastError,
			nullableMillis(op.NextAttemptAt),
		}, nil
	},
	Scan: scanOperation,
}

func scanOperation(row store.Scanner) (*domain.PendingOperation, error) {
	var (
		op          domain.PendingOperation
		id          string
		kind        string
		createdAt   int64
		lastAttempt sql.NullInt64
		lastError   sql.NullString
		nextAttempt sql.NullInt64
	)
	err := row.Scan(
		&id, &kind, &op.Payload, &op.Sealed, &op.CorrelationID, &createdAt,
		&op.Synced, &op.DeadLetter, &op.Attempts, &lastAttempt, &lastError, &nextAttempt,
	)
	if err != nil {
		return nil, err
	}

	op.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	op.Kind = domain.OperationKind(kind)
	op.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastAttempt.Valid {
		t := time.UnixMilli(lastAttempt.Int64).UTC()
		op.LastAttempt = &t
	}
	if lastError.Valid {
		op.LastError = &lastError.String
	}
	if nextAttempt.Valid {
		t := time.UnixMilli(nextAttempt.Int64).UTC()
		op.NextAttemptAt = &t
	}
	return &op, nil
}

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// SQLiteOperationRepository persists pending operations.
type SQLiteOperationRepository struct {
	store *store.Store
}

// NewSQLiteOperationRepository creates a new SQLiteOperationRepository.
func NewSQLiteOperationRepository(s *store.Store) *SQLiteOperationRepository {
	return &SQLiteOperationRepository{store: s}
}

// Create inserts a new operation. A taken correlation id yields ErrConflict.
func (r *SQLiteOperationRepository) Create(ctx context.Context, op *domain.PendingOperation) error {
	return store.Insert(ctx, r.store, operationTable, op)
}

// Update replaces the stored operation.
func (r *SQLiteOperationRepository) Update(ctx context.Context, op *domain.PendingOperation) error {
	return store.Put(ctx, r.store, operationTable, op)
}

// Delete removes the operation.
func (r *SQLiteOperationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return store.Delete(ctx, r.store, operationTable, id.String())
}

// GetByID returns the operation or ErrOperationNotFound.
func (r *SQLiteOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingOperation, error) {
	op, err := store.Get(ctx, r.store, operationTable, id.String())
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, domain.ErrOperationNotFound
	}
	return op, err
}

// GetByCorrelationID returns the operation carrying correlationID or ErrOperationNotFound.
func (r *SQLiteOperationRepository) GetByCorrelationID(
	ctx context.Context,
	correlationID string,
) (*domain.PendingOperation, error) {
	ops, err := store.Query(ctx, r.store, operationTable, indexCorrelationID, correlationID)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, domain.ErrOperationNotFound
	}
	return ops[0], nil
}

// ListDue returns up to limit operations not yet synced whose next attempt is
// due at now, oldest first, positioned after cursor when one is given.
func (r *SQLiteOperationRepository) ListDue(
	ctx context.Context,
	now time.Time,
	after *domain.Cursor,
	limit int,
) ([]*domain.PendingOperation, error) {
	const due = "synced = 0 AND (next_attempt_at IS NULL OR next_attempt_at <= ?)"
	if after == nil {
		return store.Select(ctx, r.store, operationTable,
			due+" ORDER BY created_at, id LIMIT ?", now.UnixMilli(), limit)
	}
	createdAt := after.CreatedAt.UnixMilli()
	return store.Select(ctx, r.store, operationTable,
		due+" AND (created_at > ? OR (created_at = ? AND id > ?)) ORDER BY created_at, id LIMIT ?",
		now.UnixMilli(), createdAt, createdAt, after.ID.String(), limit)
}

// ListDeadLettered returns up to limit dead-lettered operations, oldest first.
func (r *SQLiteOperationRepository) ListDeadLettered(
	ctx context.Context,
	limit int,
) ([]*domain.PendingOperation, error) {
	return store.Select(ctx, r.store, operationTable,
		"dead_letter = 1 ORDER BY created_at, id LIMIT ?", limit)
}

// Stats counts pending, dead-lettered and retained synced operations.
func (r *SQLiteOperationRepository) Stats(ctx context.Context) (*domain.QueueStats, error) {
	var stats domain.QueueStats
	err := r.store.Do(ctx, []string{store.TablePendingOperations}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		return querier.QueryRowContext(ctx, `SELECT
				COALESCE(SUM(CASE WHEN synced = 0 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN dead_letter = 1 THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN synced = 1 AND dead_letter = 0 THEN 1 ELSE 0 END), 0)
			FROM pending_operations`).Scan(&stats.Pending, &stats.DeadLettered, &stats.SyncedRetained)
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// CountPending counts operations not yet synced.
func (r *SQLiteOperationRepository) CountPending(ctx context.Context) (int64, error) {
	return r.store.CountPending(ctx)
}

// DeleteSyncedBefore removes delivered operations created before cutoff.
// Dead-lettered operations are kept until they are replayed.
func (r *SQLiteOperationRepository) DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.EvictOlderThan(ctx, store.TablePendingOperations, cutoff,
		store.Predicate{Column: "synced", Value: 1},
		store.Predicate{Column: "dead_letter", Value: 0})
}
