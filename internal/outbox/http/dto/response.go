package dto

import (
	"time"

	"github.com/allisson/posoffline/internal/outbox/domain"
)

// OperationResponse represents a pending operation in API responses. The
// payload is never echoed back.
type OperationResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	CorrelationID string     `json:"correlation_id"`
	CreatedAt     time.Time  `json:"created_at"`
	Synced        bool       `json:"synced"`
	DeadLetter    bool       `json:"dead_letter"`
	Attempts      int        `json:"attempts"`
	LastAttempt   *time.Time `json:"last_attempt,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
}

// MapOperationToResponse converts a pending operation to an API response.
func MapOperationToResponse(op *domain.PendingOperation) OperationResponse {
	return OperationResponse{
		ID:            op.ID.String(),
		Kind:          string(op.Kind),
		CorrelationID: op.CorrelationID,
		CreatedAt:     op.CreatedAt,
		Synced:        op.Synced,
		DeadLetter:    op.DeadLetter,
		Attempts:      op.Attempts,
		LastAttempt:   op.LastAttempt,
		LastError:     op.LastError,
	}
}

// SyncErrorResponse represents a recorded sync error.
type SyncErrorResponse struct {
	ID                int64          `json:"id"`
	OperationID       *string        `json:"operation_id,omitempty"`
	Message           string         `json:"message"`
	Category          string         `json:"category"`
	AttemptsAtFailure int            `json:"attempts_at_failure"`
	Context           map[string]any `json:"context,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
}

// ListSyncErrorsResponse wraps a list of sync errors.
type ListSyncErrorsResponse struct {
	Data []SyncErrorResponse `json:"data"`
}

// MapSyncErrorsToListResponse converts sync errors to an API response.
func MapSyncErrorsToListResponse(errs []*domain.SyncError) ListSyncErrorsResponse {
	data := make([]SyncErrorResponse, 0, len(errs))
	for _, e := range errs {
		item := SyncErrorResponse{
			ID:                e.ID,
			Message:           e.Message,
			Category:          string(e.Category),
			AttemptsAtFailure: e.AttemptsAtFailure,
			Context:           e.Context,
			Timestamp:         e.Timestamp,
		}
		if e.OperationID != nil {
			id := e.OperationID.String()
			item.OperationID = &id
		}
		data = append(data, item)
	}
	return ListSyncErrorsResponse{Data: data}
}

// ReplayResponse reports how many operations were requeued.
type ReplayResponse struct {
	Replayed int `json:"replayed"`
}
