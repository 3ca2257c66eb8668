// Package usecase caches remote reference records as flattened entity sets.
package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/posoffline/internal/catalog/domain"
	"github.com/allisson/posoffline/internal/projection"
)

// ReplaceResult reports the outcome of replacing one entity set.
type ReplaceResult struct {
	Type    domain.EntityType `json:"type"`
	Stored  int               `json:"stored"`
	Skipped int               `json:"skipped"`
}

// CatalogUseCase implements UseCase.
type CatalogUseCase struct {
	repo   EntityRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewCatalogUseCase creates a new CatalogUseCase.
func NewCatalogUseCase(repo EntityRepository, logger *slog.Logger) *CatalogUseCase {
	return &CatalogUseCase{repo: repo, logger: logger, now: time.Now}
}

// Replace flattens records and swaps them in as the whole cached set of
// type t. Records without a numeric id are skipped.
func (uc *CatalogUseCase) Replace(
	ctx context.Context,
	t domain.EntityType,
	records []map[string]any,
) (*ReplaceResult, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidEntityType
	}

	cachedAt := uc.now().UTC()
	result := &ReplaceResult{Type: t}
	entities := make([]*domain.Entity, 0, len(records))
	seen := make(map[int64]struct{}, len(records))

	for _, record := range records {
		data := projection.Flatten(record)
		raw, ok := projection.ID(data)
		if !ok {
			result.Skipped++
			continue
		}
		id, ok := projection.Int64(raw)
		if !ok {
			result.Skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			result.Skipped++
			continue
		}
		seen[id] = struct{}{}

		entities = append(entities, &domain.Entity{Type: t, ID: id, Data: data, CachedAt: cachedAt})
	}

	if err := uc.repo.ReplaceAll(ctx, t, entities); err != nil {
		return nil, err
	}
	result.Stored = len(entities)

	if result.Skipped > 0 {
		uc.logger.Warn("skipped reference records without a usable id",
			slog.String("entity_type", string(t)),
			slog.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// List returns the cached entities of type t.
func (uc *CatalogUseCase) List(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidEntityType
	}
	return uc.repo.ListByType(ctx, t)
}

// Get returns one cached entity.
func (uc *CatalogUseCase) Get(ctx context.Context, t domain.EntityType, id int64) (*domain.Entity, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidEntityType
	}
	return uc.repo.Get(ctx, t, id)
}

// Counts returns how many entities are cached per type.
func (uc *CatalogUseCase) Counts(ctx context.Context) (map[domain.EntityType]int64, error) {
	return uc.repo.CountByType(ctx)
}
