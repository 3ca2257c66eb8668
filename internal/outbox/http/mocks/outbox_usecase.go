// Package mocks provides mock implementations for testing the queue handlers.
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/allisson/posoffline/internal/outbox/domain"
	outboxUsecase "github.com/allisson/posoffline/internal/outbox/usecase"
)

// MockOutboxUseCase is a mock implementation of outbox UseCase for testing.
type MockOutboxUseCase struct {
	mock.Mock
}

// Enqueue mocks the Enqueue method of UseCase.
func (m *MockOutboxUseCase) Enqueue(
	ctx context.Context,
	input outboxUsecase.EnqueueInput,
) (*domain.PendingOperation, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingOperation), args.Error(1)
}

// Drain mocks the Drain method of UseCase.
func (m *MockOutboxUseCase) Drain(
	ctx context.Context,
	dispatcher outboxUsecase.Dispatcher,
) (*domain.DrainResult, error) {
	args := m.Called(ctx, dispatcher)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DrainResult), args.Error(1)
}

// CountPending mocks the CountPending method of UseCase.
func (m *MockOutboxUseCase) CountPending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Stats mocks the Stats method of UseCase.
func (m *MockOutboxUseCase) Stats(ctx context.Context) (*domain.QueueStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.QueueStats), args.Error(1)
}

// ReplayFailed mocks the ReplayFailed method of UseCase.
func (m *MockOutboxUseCase) ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	args := m.Called(ctx, ids)
	return args.Int(0), args.Error(1)
}

// ListErrors mocks the ListErrors method of UseCase.
func (m *MockOutboxUseCase) ListErrors(ctx context.Context, limit int) ([]*domain.SyncError, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SyncError), args.Error(1)
}

// RecordError mocks the RecordError method of UseCase.
func (m *MockOutboxUseCase) RecordError(ctx context.Context, e *domain.SyncError) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

// Sweep mocks the Sweep method of UseCase.
func (m *MockOutboxUseCase) Sweep(
	ctx context.Context,
	operationsBefore, errorsBefore time.Time,
) (*outboxUsecase.SweepResult, error) {
	args := m.Called(ctx, operationsBefore, errorsBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*outboxUsecase.SweepResult), args.Error(1)
}

// MockEnqueuer is a mock implementation of Enqueuer for testing.
type MockEnqueuer struct {
	mock.Mock
}

// AddToSyncQueue mocks the AddToSyncQueue method of Enqueuer.
func (m *MockEnqueuer) AddToSyncQueue(
	ctx context.Context,
	kind domain.OperationKind,
	payload json.RawMessage,
	correlationID string,
) (*domain.PendingOperation, error) {
	args := m.Called(ctx, kind, payload, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingOperation), args.Error(1)
}
