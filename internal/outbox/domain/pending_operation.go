// Package domain defines the pending-operation queue entities: operations
// waiting to be pushed to the remote authority and the errors recorded when
// they could not be.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

// OperationKind identifies what a pending operation carries.
type OperationKind string

const (
	OperationKindOrder         OperationKind = "order"
	OperationKindPayment       OperationKind = "payment"
	OperationKindSessionUpdate OperationKind = "session_update"
	OperationKindCustom        OperationKind = "custom"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationKindOrder, OperationKindPayment, OperationKindSessionUpdate, OperationKindCustom:
		return true
	}
	return false
}

// OperationKinds lists every known kind.
var OperationKinds = []OperationKind{
	OperationKindOrder,
	OperationKindPayment,
	OperationKindSessionUpdate,
	OperationKindCustom,
}

// PendingOperation is a locally recorded mutation awaiting delivery.
//
// Synced is true once the operation is done: either delivered, or
// dead-lettered after exhausting its attempts (DeadLetter is then set).
// A failed operation is not attempted again before NextAttemptAt.
type PendingOperation struct {
	ID            uuid.UUID
	Kind          OperationKind
	Payload       []byte
	Sealed        bool
	CorrelationID string
	CreatedAt     time.Time
	Synced        bool
	DeadLetter    bool
	Attempts      int
	LastAttempt   *time.Time
	NextAttemptAt *time.Time
	LastError     *string
}

// RetryDelay returns how long an operation waits after its attempts-th
// failure: base doubled for every earlier failure, never more than limit.
func RetryDelay(attempts int, base, limit time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		if delay >= limit/2 {
			return limit
		}
		delay *= 2
	}
	return min(delay, limit)
}

// JSONPayload returns the payload as raw JSON. Only meaningful once unsealed.
func (o *PendingOperation) JSONPayload() json.RawMessage {
	return json.RawMessage(o.Payload)
}

// Cursor marks the position of the last operation read while paging.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// ErrorCategory classifies why an operation failed to sync.
type ErrorCategory string

const (
	ErrorCategoryTransport  ErrorCategory = "transport"
	ErrorCategoryConflict   ErrorCategory = "conflict"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryUnknown    ErrorCategory = "unknown"
)

// CategorizeError maps a dispatch error onto an error category.
func CategorizeError(err error) ErrorCategory {
	switch {
	case apperrors.Is(err, apperrors.ErrTransport):
		return ErrorCategoryTransport
	case apperrors.Is(err, apperrors.ErrConflict):
		return ErrorCategoryConflict
	case apperrors.Is(err, apperrors.ErrInvalidInput):
		return ErrorCategoryValidation
	default:
		return ErrorCategoryUnknown
	}
}

// SyncError is an append-only record of a failure during synchronization.
// OperationID is nil for failures outside the queue (metadata, refresh).
type SyncError struct {
	ID                int64
	OperationID       *uuid.UUID
	Message           string
	Category          ErrorCategory
	AttemptsAtFailure int
	Context           map[string]any
	Timestamp         time.Time
}

// DrainResult summarizes one pass over the queue.
type DrainResult struct {
	Processed    int `json:"processed"`
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// QueueStats reports the state of the queue.
type QueueStats struct {
	Pending        int64 `json:"pending"`
	DeadLettered   int64 `json:"dead_lettered"`
	SyncedRetained int64 `json:"synced_retained"`
	Errors         int64 `json:"errors"`
	Staged         int   `json:"staged"`
	StagingEvicted int64 `json:"staging_evicted"`
}

// Outbox errors.
var (
	// ErrOperationNotFound indicates the pending operation does not exist.
	ErrOperationNotFound = apperrors.Wrap(apperrors.ErrNotFound, "pending operation not found")

	// ErrInvalidKind indicates an unknown operation kind.
	ErrInvalidKind = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid operation kind")

	// ErrInvalidPayload indicates the payload is not a JSON document.
	ErrInvalidPayload = apperrors.Wrap(apperrors.ErrInvalidInput, "payload must be valid JSON")

	// ErrServerUnreachable indicates a drain stopped because the server could not be reached.
	ErrServerUnreachable = apperrors.Wrap(apperrors.ErrTransport, "drain stopped: server unreachable")
)
