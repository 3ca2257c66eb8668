// Package repository provides SQLite persistence for cached reference entities.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/store"
)

const indexEntityType = "by_entity_type"

var entityTables = []string{store.TableReferenceEntities}

var entityTable = store.Table[domain.Entity]{
	Name:    store.TableReferenceEntities,
	Key:     "key",
	Columns: []string{"key", "entity_type", "entity_id", "data", "cached_at"},
	Indexes: map[string]string{indexEntityType: "entity_type"},
	OrderBy: "entity_type, entity_id",
	Values: func(e *domain.Entity) ([]any, error) {
		data := e.Data
		if data == nil {
			data = map[string]any{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
		}
		return []any{e.Key(), string(e.Type), e.ID, string(raw), e.CachedAt.UnixMilli()}, nil
	},
	Scan: func(row store.Scanner) (*domain.Entity, error) {
		var (
			e          domain.Entity
			key        string
			entityType string
			data       string
			cachedAt   int64
		)
		if err := row.Scan(&key, &entityType, &e.ID, &data, &cachedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
			return nil, err
		}
		e.Type = domain.EntityType(entityType)
		e.CachedAt = time.UnixMilli(cachedAt).UTC()
		return &e, nil
	},
}

// SQLiteEntityRepository persists cached reference entities.
type SQLiteEntityRepository struct {
	store *store.Store
}

// NewSQLiteEntityRepository creates a new SQLiteEntityRepository.
func NewSQLiteEntityRepository(s *store.Store) *SQLiteEntityRepository {
	return &SQLiteEntityRepository{store: s}
}

// ReplaceAll atomically replaces every entity of type t with entities.
func (r *SQLiteEntityRepository) ReplaceAll(ctx context.Context, t domain.EntityType, entities []*domain.Entity) error {
	return r.store.Do(ctx, entityTables, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		if _, err := querier.ExecContext(ctx, "DELETE FROM reference_entities WHERE entity_type = ?", string(t)); err != nil {
			return err
		}
		for _, e := range entities {
			if e.Type != t {
				return apperrors.Wrapf(apperrors.ErrInvalidInput, "entity %s in a %s set", e.Key(), t)
			}
			if err := store.Put(ctx, r.store, entityTable, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListByType returns every cached entity of type t ordered by id.
func (r *SQLiteEntityRepository) ListByType(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error) {
	return store.Query(ctx, r.store, entityTable, indexEntityType, string(t))
}

// Get returns one entity or ErrEntityNotFound.
func (r *SQLiteEntityRepository) Get(ctx context.Context, t domain.EntityType, id int64) (*domain.Entity, error) {
	e, err := store.Get(ctx, r.store, entityTable, domain.Key(t, id))
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, domain.ErrEntityNotFound
	}
	return e, err
}

// CountByType returns the number of cached entities per type.
func (r *SQLiteEntityRepository) CountByType(ctx context.Context) (map[domain.EntityType]int64, error) {
	counts := make(map[domain.EntityType]int64)
	err := r.store.Do(ctx, entityTables, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		rows, err := querier.QueryContext(ctx,
			"SELECT entity_type, COUNT(*) FROM reference_entities GROUP BY entity_type")
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			var (
				t     string
				count int64
			)
			if err := rows.Scan(&t, &count); err != nil {
				return err
			}
			counts[domain.EntityType(t)] = count
		}
		return rows.Err()
	})
	return counts, err
}
