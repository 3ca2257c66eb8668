// Package repository provides SQLite persistence for session snapshots.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/session/domain"
	"github.com/allisson/posoffline/internal/store"
)

var sessionTable = store.Table[domain.SessionRecord]{
	Name: store.TableSessions,
	Key:  "id",
	Columns: []string{
		"id", "user_id", "config_id", "user_data", "config_data",
		"offline_mode", "created_at", "last_accessed",
	},
	OrderBy: "last_accessed DESC",
	Values: func(s *domain.SessionRecord) ([]any, error) {
		userData, err := marshalData(s.UserData)
		if err != nil {
			return nil, err
		}
		configData, err := marshalData(s.ConfigData)
		if err != nil {
			return nil, err
		}
		return []any{
			s.ID,
			nullableID(s.UserID()),
			nullableID(s.ConfigID()),
			userData,
			configData,
			s.OfflineMode,
			s.CreatedAt.UnixMilli(),
			s.LastAccessed.UnixMilli(),
		}, nil
	},
	Scan: func(row store.Scanner) (*domain.SessionRecord, error) {
		var (
			s            domain.SessionRecord
			userID       *int64
			configID     *int64
			userData     string
			configData   string
			createdAt    int64
			lastAccessed int64
		)
		err := row.Scan(&s.ID, &userID, &configID, &userData, &configData, &s.OfflineMode, &createdAt, &lastAccessed)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(userData), &s.UserData); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(configData), &s.ConfigData); err != nil {
			return nil, err
		}
		s.CreatedAt = time.UnixMilli(createdAt).UTC()
		s.LastAccessed = time.UnixMilli(lastAccessed).UTC()
		return &s, nil
	},
}

func marshalData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}
	return string(raw), nil
}

func nullableID(id int64, ok bool) any {
	if !ok {
		return nil
	}
	return id
}

// SQLiteSessionRepository persists session snapshots.
type SQLiteSessionRepository struct {
	store *store.Store
}

// NewSQLiteSessionRepository creates a new SQLiteSessionRepository.
func NewSQLiteSessionRepository(s *store.Store) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{store: s}
}

// Save inserts or replaces the session.
func (r *SQLiteSessionRepository) Save(ctx context.Context, s *domain.SessionRecord) error {
	return store.Put(ctx, r.store, sessionTable, s)
}

// Get returns the session or ErrSessionNotFound.
func (r *SQLiteSessionRepository) Get(ctx context.Context, id string) (*domain.SessionRecord, error) {
	s, err := store.Get(ctx, r.store, sessionTable, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	return s, err
}

// List returns every stored session, most recently accessed first.
func (r *SQLiteSessionRepository) List(ctx context.Context) ([]*domain.SessionRecord, error) {
	return store.GetAll(ctx, r.store, sessionTable)
}

// Touch updates the last access time of the session.
func (r *SQLiteSessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	return r.store.Do(ctx, []string{store.TableSessions}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		_, err := querier.ExecContext(ctx, "UPDATE sessions SET last_accessed = ? WHERE id = ?", at.UnixMilli(), id)
		return err
	})
}

// Delete removes the session.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, id string) error {
	return store.Delete(ctx, r.store, sessionTable, id)
}

// DeleteOffline removes every locally fabricated session.
func (r *SQLiteSessionRepository) DeleteOffline(ctx context.Context) (int64, error) {
	var removed int64
	err := r.store.Do(ctx, []string{store.TableSessions}, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		result, err := querier.ExecContext(ctx, "DELETE FROM sessions WHERE offline_mode = 1")
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	return removed, err
}

// EvictIdle removes sessions not accessed since cutoff, keeping keepID.
func (r *SQLiteSessionRepository) EvictIdle(ctx context.Context, cutoff time.Time, keepID string) (int64, error) {
	return r.store.EvictOlderThan(ctx, store.TableSessions, cutoff, store.Predicate{
		Column: "id",
		Value:  keepID,
		Not:    true,
	})
}
