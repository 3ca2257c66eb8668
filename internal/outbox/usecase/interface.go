package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/posoffline/internal/outbox/domain"
)

// OperationRepository defines pending operation persistence.
type OperationRepository interface {
	Create(ctx context.Context, op *domain.PendingOperation) error
	Update(ctx context.Context, op *domain.PendingOperation) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PendingOperation, error)
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.PendingOperation, error)
	ListDue(ctx context.Context, now time.Time, after *domain.Cursor, limit int) ([]*domain.PendingOperation, error)
	ListDeadLettered(ctx context.Context, limit int) ([]*domain.PendingOperation, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)
	CountPending(ctx context.Context) (int64, error)
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncErrorRepository defines sync error persistence.
type SyncErrorRepository interface {
	Create(ctx context.Context, e *domain.SyncError) error
	List(ctx context.Context, limit int) ([]*domain.SyncError, error)
	Count(ctx context.Context) (int64, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// UnitOfWork runs fn atomically over the named tables.
type UnitOfWork interface {
	Do(ctx context.Context, tables []string, fn func(ctx context.Context) error) error
}

// CapacityGuard evicts history before a write would take the store to its quota.
type CapacityGuard interface {
	EnsureCapacity(ctx context.Context, need int64, evict func(ctx context.Context) error) error
}

// Sealer protects payloads at rest.
type Sealer interface {
	Enabled() bool
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Dispatcher delivers a single operation to the remote authority.
type Dispatcher interface {
	DispatchOperation(ctx context.Context, op *domain.PendingOperation) error
}

// UseCase defines the pending-operation queue use cases.
type UseCase interface {
	Enqueue(ctx context.Context, input EnqueueInput) (*domain.PendingOperation, error)
	Drain(ctx context.Context, dispatcher Dispatcher) (*domain.DrainResult, error)
	CountPending(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*domain.QueueStats, error)
	ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error)
	ListErrors(ctx context.Context, limit int) ([]*domain.SyncError, error)
	RecordError(ctx context.Context, e *domain.SyncError) error
	Sweep(ctx context.Context, operationsBefore, errorsBefore time.Time) (*SweepResult, error)
}
