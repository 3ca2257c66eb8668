// Package mocks provides mock implementations for testing the catalog handlers.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/catalog/domain"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
)

// MockCatalogUseCase is a mock implementation of catalog UseCase for testing.
type MockCatalogUseCase struct {
	mock.Mock
}

// Replace mocks the Replace method of UseCase.
func (m *MockCatalogUseCase) Replace(
	ctx context.Context,
	t domain.EntityType,
	records []map[string]any,
) (*catalogUsecase.ReplaceResult, error) {
	args := m.Called(ctx, t, records)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogUsecase.ReplaceResult), args.Error(1)
}

// List mocks the List method of UseCase.
func (m *MockCatalogUseCase) List(ctx context.Context, t domain.EntityType) ([]*domain.Entity, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Entity), args.Error(1)
}

// Get mocks the Get method of UseCase.
func (m *MockCatalogUseCase) Get(ctx context.Context, t domain.EntityType, id int64) (*domain.Entity, error) {
	args := m.Called(ctx, t, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Entity), args.Error(1)
}

// Counts mocks the Counts method of UseCase.
func (m *MockCatalogUseCase) Counts(ctx context.Context) (map[domain.EntityType]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.EntityType]int64), args.Error(1)
}
