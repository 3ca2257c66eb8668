package usecase

import (
	"context"

	"github.com/allisson/posoffline/internal/catalog/domain"
)

// EntityRepository defines cached reference entity persistence.
type EntityRepository interface {
	ReplaceAll(ctx context.Context, t domain.EntityType, entities []*domain.Entity) error
	ListByType(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error)
	Get(ctx context.Context, t domain.EntityType, id int64) (*domain.Entity, error)
	CountByType(ctx context.Context) (map[domain.EntityType]int64, error)
}

// UseCase defines the reference entity cache use cases.
type UseCase interface {
	Replace(ctx context.Context, t domain.EntityType, records []map[string]any) (*ReplaceResult, error)
	List(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error)
	Get(ctx context.Context, t domain.EntityType, id int64) (*domain.Entity, error)
	Counts(ctx context.Context) (map[domain.EntityType]int64, error)
}
