// Package mocks provides mock implementations of the outbox use case for testing.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/outbox/usecase"
)

// MockUseCase is a mock implementation of usecase.UseCase for testing.
type MockUseCase struct {
	mock.Mock
}

// Enqueue mocks the Enqueue method of UseCase.
func (m *MockUseCase) Enqueue(ctx context.Context, input usecase.EnqueueInput) (*domain.PendingOperation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingOperation), args.Error(1)
}

// Drain mocks the Drain method of UseCase.
func (m *MockUseCase) Drain(ctx context.Context, dispatcher usecase.Dispatcher) (*domain.DrainResult, error) {
	args := m.Called(ctx, dispatcher)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrainResult), args.Error(1)
}

// CountPending mocks the CountPending method of UseCase.
func (m *MockUseCase) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Stats mocks the Stats method of UseCase.
func (m *MockUseCase) Stats(ctx context.Context) (*domain.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueStats), args.Error(1)
}

// ReplayFailed mocks the ReplayFailed method of UseCase.
func (m *MockUseCase) ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

// ListErrors mocks the ListErrors method of UseCase.
func (m *MockUseCase) ListErrors(ctx context.Context, limit int) ([]*domain.SyncError, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SyncError), args.Error(1)
}

// RecordError mocks the RecordError method of UseCase.
func (m *MockUseCase) RecordError(ctx context.Context, e *domain.SyncError) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// Sweep mocks the Sweep method of UseCase.
func (m *MockUseCase) Sweep(
	ctx context.Context,
	operationsBefore, errorsBefore time.Time,
) (*usecase.SweepResult, error) {
	args := m.Called(ctx, operationsBefore, errorsBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SweepResult), args.Error(1)
}

var _ usecase.UseCase = (*MockUseCase)(nil)
