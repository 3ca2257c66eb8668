package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/posoffline/internal/metrics"
	"github.com/allisson/posoffline/internal/outbox/domain"
)

// outboxUseCaseWithMetrics decorates UseCase with metrics instrumentation.
type outboxUseCaseWithMetrics struct {
	next    UseCase
	metrics metrics.BusinessMetrics
}

// NewOutboxUseCaseWithMetrics wraps a UseCase with metrics recording.
func NewOutboxUseCaseWithMetrics(useCase UseCase, m metrics.BusinessMetrics) UseCase {
	return &outboxUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (o *outboxUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", operation, status)
	o.metrics.RecordDuration(ctx, "outbox", operation, time.Since(start), status)
}

// Enqueue records metrics for operation enqueue.
func (o *outboxUseCaseWithMetrics) Enqueue(
	ctx context.Context,
	input EnqueueInput,
) (*domain.PendingOperation, error) {
	start := time.Now()
	op, err := o.next.Enqueue(ctx, input)
	o.record(ctx, "operation_enqueue", start, err)
	return op, err
}

// Drain records metrics for queue drains and counts the operations by outcome,
// including those handled before a stopped drain returned its error.
func (o *outboxUseCaseWithMetrics) Drain(ctx context.Context, dispatcher Dispatcher) (*domain.DrainResult, error) {
	start := time.Now()
	result, err := o.next.Drain(ctx, dispatcher)
	o.record(ctx, "queue_drain", start, err)

	if result != nil {
		o.metrics.RecordItems(ctx, "outbox", "succeeded", result.Succeeded)
		o.metrics.RecordItems(ctx, "outbox", "failed", result.Failed)
		o.metrics.RecordItems(ctx, "outbox", "dead_lettered", result.DeadLettered)
	}
	return result, err
}

// CountPending is not instrumented.
func (o *outboxUseCaseWithMetrics) CountPending(ctx context.Context) (int64, error) {
	return o.next.CountPending(ctx)
}

// Stats is not instrumented.
func (o *outboxUseCaseWithMetrics) Stats(ctx context.Context) (*domain.QueueStats, error) {
	return o.next.Stats(ctx)
}

// ReplayFailed records metrics for dead-letter replays.
func (o *outboxUseCaseWithMetrics) ReplayFailed(ctx context.Context, ids []uuid.UUID) (int, error) {
	start := time.Now()
	count, err := o.next.ReplayFailed(ctx, ids)
	o.record(ctx, "operation_replay", start, err)
	return count, err
}

// ListErrors is not instrumented.
func (o *outboxUseCaseWithMetrics) ListErrors(ctx context.Context, limit int) ([]*domain.SyncError, error) {
	return o.next.ListErrors(ctx, limit)
}

// RecordError records metrics for sync errors raised outside a drain.
func (o *outboxUseCaseWithMetrics) RecordError(ctx context.Context, e *domain.SyncError) error {
	start := time.Now()
	err := o.next.RecordError(ctx, e)
	o.record(ctx, "sync_error_record", start, err)
	return err
}

// Sweep records metrics for retention sweeps.
func (o *outboxUseCaseWithMetrics) Sweep(
	ctx context.Context,
	operationsBefore, errorsBefore time.Time,
) (*SweepResult, error) {
	start := time.Now()
	result, err := o.next.Sweep(ctx, operationsBefore, errorsBefore)
	o.record(ctx, "retention_sweep", start, err)
	return result, err
}
