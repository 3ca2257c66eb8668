// Package usecase implements the pending-operation queue: durable enqueue,
// the per-item isolated drain and dead-letter handling.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/outbox/domain"
	"github.com/allisson/posoffline/internal/store"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

var (
	operationTables = []string{store.TablePendingOperations}
	settleTables    = []string{store.TablePendingOperations, store.TableSyncErrors}
)

// Config holds outbox use case configuration
type Config struct {
	MaxAttempts  int
	BatchSize    int
	StagingSize  int
	RetainSynced bool
	// RetryBaseDelay and RetryMaxDelay bound the wait between two attempts
	// of the same operation.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// Unreachable reports whether a dispatch error means the server cannot be
	// reached at all. Such an error ends the drain after the failing operation.
	Unreachable func(err error) bool
}

// EnqueueInput describes an operation to record.
type EnqueueInput struct {
	Kind          domain.OperationKind
	Payload       json.RawMessage
	CorrelationID string
}

// Validate checks the enqueue input.
func (in EnqueueInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Kind,
			validation.Required,
			validation.By(func(value interface{}) error {
				if !value.(domain.OperationKind).Valid() {
					return validation.NewError("validation_operation_kind", "must be a known operation kind")
				}
				return nil
			}),
		),
		validation.Field(&in.Payload, validation.Required, customValidation.JSONDocument),
		validation.Field(&in.CorrelationID, validation.Length(1, 128), customValidation.Identifier),
	)
}

// SweepResult reports how many records a retention sweep removed.
type SweepResult struct {
	Operations int64 `json:"operations"`
	Errors     int64 `json:"errors"`
}

// OutboxUseCase implements UseCase.
type OutboxUseCase struct {
	config        Config
	uow           UnitOfWork
	operationRepo OperationRepository
	syncErrorRepo SyncErrorRepository
	capacity      CapacityGuard
	sealer        Sealer
	staging       *stagingBuffer
	logger        *slog.Logger
	now           func() time.Time
}

// NewOutboxUseCase creates a new OutboxUseCase. capacity and sealer may be nil.
func NewOutboxUseCase(
	config Config,
	uow UnitOfWork,
	operationRepo OperationRepository,
	syncErrorRepo SyncErrorRepository,
	capacity CapacityGuard,
	sealer Sealer,
	logger *slog.Logger,
) *OutboxUseCase {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.StagingSize <= 0 {
		config.StagingSize = 1000
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 5 * time.Second
	}
	if config.RetryMaxDelay <= 0 {
		config.RetryMaxDelay = time.Hour
	}
	if config.Unreachable == nil {
		config.Unreachable = func(error) bool { return false }
	}

	return &OutboxUseCase{
		config:        config,
		uow:           uow,
		operationRepo: operationRepo,
		syncErrorRepo: syncErrorRepo,
		capacity:      capacity,
		sealer:        sealer,
		staging:       newStagingBuffer(config.StagingSize),
		logger:        logger,
		now:           time.Now,
	}
}

// Enqueue durably records a new operation. Re-enqueueing an existing
// correlation id returns the stored operation. When the store keeps failing
// the operation is staged in memory and flushed by later calls.
func (uc *OutboxUseCase) Enqueue(ctx context.Context, input EnqueueInput) (*domain.PendingOperation, error) {
	if err := input.Validate(); err != nil {
		return nil, customValidation.WrapValidationError(err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	correlationID := input.CorrelationID
	if correlationID == "" {
		correlationID = id.String()
	}

	payload := []byte(input.Payload)
	sealed := false
	if uc.sealer != nil && uc.sealer.Enabled() {
		payload, err = uc.sealer.Seal(ctx, payload)
		if err != nil {
			return nil, err
		}
		sealed = true
	}

	op := &domain.PendingOperation{
		ID:            id,
		Kind:          input.Kind,
		Payload:       payload,
		Sealed:        sealed,
		CorrelationID: correlationID,
		CreatedAt:     uc.now().UTC().Truncate(time.Millisecond),
	}

	uc.flushStaged(ctx)

	stored, err := uc.write(ctx, op)
	if err == nil {
		return stored, nil
	}

	if apperrors.Is(err, apperrors.ErrStorage) {
		if dropped := uc.staging.Push(op); dropped != nil {
			uc.log().Error("staging buffer full, dropped oldest operation",
				slog.String("operation_id", dropped.ID.String()),
				slog.String("kind", string(dropped.Kind)),
			)
		}
		uc.log().Warn("operation staged after storage failure",
			slog.String("operation_id", op.ID.String()),
			slog.Int("staged", uc.staging.Len()),
			slog.Any("error", err),
		)
		return op, nil
	}
	return nil, err
}

func (uc *OutboxUseCase) write(ctx context.Context, op *domain.PendingOperation) (*domain.PendingOperation, error) {
	if uc.capacity != nil {
		if err := uc.capacity.EnsureCapacity(ctx, int64(len(op.Payload)), uc.evictHistory); err != nil {
			uc.log().Warn("capacity check failed", slog.Any("error", err))
		}
	}

	stored, err := uc.insert(ctx, op)
	if apperrors.Is(err, apperrors.ErrQuotaExceeded) {
		if evictErr := uc.evictHistory(ctx); evictErr != nil {
			return nil, apperrors.Join(err, evictErr)
		}
		stored, err = uc.insert(ctx, op)
	}
	return stored, err
}

func (uc *OutboxUseCase) insert(ctx context.Context, op *domain.PendingOperation) (*domain.PendingOperation, error) {
	var stored *domain.PendingOperation
	err := uc.uow.Do(ctx, operationTables, func(ctx context.Context) error {
		existing, err := uc.operationRepo.GetByCorrelationID(ctx, op.CorrelationID)
		if err == nil {
			stored = existing
			return nil
		}
		if !apperrors.Is(err, domain.ErrOperationNotFound) {
			return err
		}

		stored = op
		return uc.operationRepo.Create(ctx, op)
	})
	return stored, err
}

// evictHistory frees space by removing every delivered operation.
// Dead-lettered operations survive eviction.
func (uc *OutboxUseCase) evictHistory(ctx context.Context) error {
	removed, err := uc.operationRepo.DeleteSyncedBefore(ctx, uc.now().Add(time.Millisecond))
	if err != nil {
		return err
	}
	uc.log().Info("evicted synced operations to free space", slog.Int64("removed", removed))
	return nil
}

func (uc *OutboxUseCase) flushStaged(ctx context.Context) {
	staged := uc.staging.Take()
	for i, op := range staged {
		if _, err := uc.insert(ctx, op); err != nil {
			uc.staging.Restore(staged[i:])
			uc.log().Warn("failed to flush staged operations",
				slog.Int("remaining", len(staged)-i),
				slog.Any("error", err),
			)
			return
		}
	}
}

// Drain attempts every due pending operation once, oldest first. A failing
// operation never blocks the ones behind it: its attempt is counted, its next
// attempt is pushed back and after MaxAttempts failures it is dead-lettered
// with a SyncError recorded in the same unit of work.
//
// Two failures end the drain after the failing operation has been settled:
// an authentication failure, returned as is, and an unreachable server,
// returned wrapped in domain.ErrServerUnreachable.
func (uc *OutboxUseCase) Drain(ctx context.Context, dispatcher Dispatcher) (*domain.DrainResult, error) {
	uc.flushStaged(ctx)

	now := uc.now()
	result := &domain.DrainResult{}
	var cursor *domain.Cursor
	for {
		ops, err := uc.operationRepo.ListDue(ctx, now, cursor, uc.config.BatchSize)
		if err != nil {
			return result, err
		}

		for _, op := range ops {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			result.Processed++
			dispatchErr := uc.dispatch(ctx, dispatcher, op)
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if dispatchErr == nil {
				if err := uc.markSucceeded(ctx, op); err != nil {
					return result, err
				}
				result.Succeeded++
				continue
			}

			deadLettered, err := uc.markFailed(ctx, op, dispatchErr)
			if err != nil {
				return result, err
			}
			result.Failed++
			if deadLettered {
				result.DeadLettered++
			}

			switch {
			case apperrors.Is(dispatchErr, apperrors.ErrAuth):
				return result, dispatchErr
			case uc.config.Unreachable(dispatchErr):
				return result, apperrors.Join(domain.ErrServerUnreachable, dispatchErr)
			}
		}

		if len(ops) < uc.config.BatchSize {
			return result, nil
		}
		last := ops[len(ops)-1]
		cursor = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (uc *OutboxUseCase) dispatch(ctx context.Context, dispatcher Dispatcher, op *domain.PendingOperation) error {
	outgoing := *op
	if op.Sealed {
		if uc.sealer == nil {
			return apperrors.New("operation payload is sealed but no keeper is configured")
		}
		plain, err := uc.sealer.Open(ctx, op.Payload)
		if err != nil {
			return err
		}
		outgoing.Payload = plain
		outgoing.Sealed = false
	}
	return dispatcher.DispatchOperation(ctx, &outgoing)
}

func (uc *OutboxUseCase) markSucceeded(ctx context.Context, op *domain.PendingOperation) error {
	return uc.uow.Do(ctx, operationTables, func(ctx context.Context) error {
		op.Synced = true
		if uc.config.RetainSynced {
			return uc.operationRepo.Update(ctx, op)
		}
		return uc.operationRepo.Delete(ctx, op.ID)
	})
}

func (uc *OutboxUseCase) markFailed(ctx context.Context, op *domain.PendingOperation, cause error) (bool, error) {
	now := uc.now().UTC().Truncate(time.Millisecond)
	msg := cause.Error()
	deadLettered := false

	err := uc.uow.Do(ctx, settleTables, func(ctx context.Context) error {
		op.Attempts++
		op.LastAttempt = &now
		op.LastError = &msg
		next := now.Add(domain.RetryDelay(op.Attempts, uc.config.RetryBaseDelay, uc.config.RetryMaxDelay))
		op.NextAttemptAt = &next

		if op.Attempts >= uc.config.MaxAttempts {
			op.Synced = true
			op.DeadLetter = true
			op.NextAttemptAt = nil
			deadLettered = true

			opID := op.ID
			syncErr := &domain.SyncError{
				OperationID:       &opID,
				Message:           msg,
				Category:          domain.CategorizeError(cause),
				AttemptsAtFailure: op.Attempts,
				Context: map[string]any{
					"kind":           string(op.Kind),
					"correlation_id": op.CorrelationID,
				},
				Timestamp: now,
			}
			if err := uc.syncErrorRepo.Create(ctx, syncErr); err != nil {
				return err
			}
		}
		return uc.operationRepo.Update(ctx, op)
	})
	if err != nil {
		return false, err
	}

	logAttrs := []any{
		slog.String("operation_id", op.ID.String()),
		slog.String("kind", string(op.Kind)),
		slog.Int("attempts", op.Attempts),
		slog.Any("error", cause),
	}
	if deadLettered {
		uc.log().Error("operation dead-lettered", logAttrs...)
	} else {
		logAttrs = append(logAttrs, slog.Time("next_attempt_at", *op.NextAttemptAt))
		uc.log().Warn("operation dispatch failed", logAttrs...)
	}
	return deadLettered, nil
}

// CountPending returns the number of operations awaiting delivery, staged ones included.
func (uc *OutboxUseCase) CountPending(ctx context.Context) (int64, error) {
	count, err := uc.operationRepo.CountPending(ctx)
	if err != nil {
		return 0, err
	}
	return count + int64(uc.staging.Len()), nil
}

// Stats reports queue totals.
func (uc *OutboxUseCase) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats, err := uc.operationRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats.Errors, err = uc.syncErrorRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats.Staged = uc.staging.Len()
	stats.StagingEvicted = uc.staging.Evicted()
	return stats, nil
}

// ReplayFailed re-arms dead-lettered operations so the next drain retries
// them. With no ids every dead-lettered operation is re-armed. Recorded
// SyncErrors are kept.
func (uc *OutboxUseCase) ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	replayed := 0
	err := uc.uow.Do(ctx, operationTables, func(ctx context.Context) error {
		targets, err := uc.replayTargets(ctx, ids)
		if err != nil {
			return err
		}
		for _, op := range targets {
			op.Synced = false
			op.DeadLetter = false
			op.Attempts = 0
			op.LastAttempt = nil
			op.NextAttemptAt = nil
			op.LastError = nil
			if err := uc.operationRepo.Update(ctx, op); err != nil {
				return err
			}
		}
		replayed = len(targets)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if replayed > 0 {
		uc.log().Info("dead-lettered operations re-armed", slog.Int("count", replayed))
	}
	return replayed, nil
}

func (uc *OutboxUseCase) replayTargets(ctx context.Context, ids []uuid.UUID) ([]*domain.PendingOperation, error) {
	if len(ids) == 0 {
		return uc.operationRepo.ListDeadLettered(ctx, -1)
	}

	targets := make([]*domain.PendingOperation, 0, len(ids))
	for _, id := range ids {
		op, err := uc.operationRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !op.DeadLetter {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "operation %s is not dead-lettered", id)
		}
		targets = append(targets, op)
	}
	return targets, nil
}

// ListErrors returns the most recent sync errors.
func (uc *OutboxUseCase) ListErrors(ctx context.Context, limit int) ([]*domain.SyncError, error) {
	if limit <= 0 {
		limit = 50
	}
	return uc.syncErrorRepo.List(ctx, limit)
}

// RecordError appends a sync error that is not tied to a queue drain.
func (uc *OutboxUseCase) RecordError(ctx context.Context, e *domain.SyncError) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = uc.now().UTC()
	}
	if e.Category == "" {
		e.Category = domain.ErrorCategoryUnknown
	}
	return uc.syncErrorRepo.Create(ctx, e)
}

// Sweep removes delivered operations created before operationsBefore and
// errors recorded before errorsBefore. Dead-lettered operations are kept.
func (uc *OutboxUseCase) Sweep(
	ctx context.Context,
	operationsBefore, errorsBefore time.Time,
) (*SweepResult, error) {
	var result SweepResult
	var err error

	result.Operations, err = uc.operationRepo.DeleteSyncedBefore(ctx, operationsBefore)
	if err != nil {
		return nil, err
	}
	result.Errors, err = uc.syncErrorRepo.DeleteBefore(ctx, errorsBefore)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (uc *OutboxUseCase) log() *slog.Logger {
	if uc.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return uc.logger
}
