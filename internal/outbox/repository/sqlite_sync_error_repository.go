package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/posoffline/internal/database"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/store"
)

var syncErrorTable = store.Table[domain.SyncError]{
	Name:    store.TableSyncErrors,
	Key:     "id",
	Columns: []string{"id", "operation_id", "message", "category", "attempts", "context", "timestamp"},
	Indexes: map[string]string{"by_operation_id": "operation_id"},
	OrderBy: "timestamp DESC, id DESC",
	Scan:    scanSyncError,
}

func scanSyncError(row store.Scanner) (*domain.SyncError, error) {
	var (
		e           domain.SyncError
		operationID sql.NullString
		category    string
		rawContext  string
		timestamp   int64
	)
	if err := row.Scan(&e.ID, &operationID, &e.Message, &category, &e.AttemptsAtFailure, &rawContext, &timestamp); err != nil {
		return nil, err
	}

	if operationID.Valid {
		id, err := uuid.Parse(operationID.String)
		if err != nil {
			return nil, err
		}
		e.OperationID = &id
	}
	e.Category = domain.ErrorCategory(category)
	e.Timestamp = time.UnixMilli(timestamp).UTC()
	if err := json.Unmarshal([]byte(rawContext), &e.Context); err != nil {
		return nil, err
	}
	return &e, nil
}

// SQLiteSyncErrorRepository persists the append-only sync error log.
type SQLiteSyncErrorRepository struct {
	store *store.Store
}

// NewSQLiteSyncErrorRepository creates a new SQLiteSyncErrorRepository.
func NewSQLiteSyncErrorRepository(s *store.Store) *SQLiteSyncErrorRepository {
	return &SQLiteSyncErrorRepository{store: s}
}

// Create appends e and sets its generated id.
func (r *SQLiteSyncErrorRepository) Create(ctx context.Context, e *domain.SyncError) error {
	if e.Context == nil {
		e.Context = map[string]any{}
	}
	rawContext, err := json.Marshal(e.Context)
	if err != nil {
		return err
	}

	var operationID any
	if e.OperationID != nil {
		operationID = e.OperationID.String()
	}

	return r.store.Do(ctx, []string{store.TableSyncErrors}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		result, err := querier.ExecContext(ctx,
			`INSERT INTO sync_errors (operation_id, message, category, attempts, context, timestamp)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			operationID, e.Message, string(e.Category), e.AttemptsAtFailure, string(rawContext),
			e.Timestamp.UnixMilli(),
		)
		if err != nil {
			return err
		}
		e.ID, err = result.LastInsertId()
		return err
	})
}

// List returns up to limit errors, newest first.
func (r *SQLiteSyncErrorRepository) List(ctx context.Context, limit int) ([]*domain.SyncError, error) {
	return store.Select(ctx, r.store, syncErrorTable, "1 = 1 ORDER BY timestamp DESC, id DESC LIMIT ?", limit)
}

// ListByOperation returns every error recorded for the operation, newest first.
func (r *SQLiteSyncErrorRepository) ListByOperation(
	ctx context.Context,
	operationID uuid.UUID,
) ([]*domain.SyncError, error) {
	return store.Query(ctx, r.store, syncErrorTable, "by_operation_id", operationID.String())
}

// Count returns the number of recorded errors.
func (r *SQLiteSyncErrorRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.store.Do(ctx, []string{store.TableSyncErrors}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		return querier.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_errors").Scan(&count)
	})
	return count, err
}

// DeleteBefore removes errors recorded before cutoff.
func (r *SQLiteSyncErrorRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.store.EvictOlderThan(ctx, store.TableSyncErrors, cutoff)
}
