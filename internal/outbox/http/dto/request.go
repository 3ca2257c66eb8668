// Package dto provides data transfer objects for the queue endpoints.
package dto

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"

	"github.com/allisson/posoffline/internal/outbox/domain"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// EnqueueRequest contains an operation recorded through the local API.
type EnqueueRequest struct {
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
}

// Validate checks if the enqueue request is valid.
func (r *EnqueueRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Kind,
			validation.Required,
			validation.By(validateKind),
		),
		validation.Field(&r.Payload,
			validation.Required,
			customValidation.JSONDocument,
		),
		validation.Field(&r.CorrelationID,
			validation.Length(1, 128),
			customValidation.Identifier,
		),
	)
}

// ReplayRequest lists dead-lettered operations to requeue. An empty list
// requeues all of them.
type ReplayRequest struct {
	IDs []string `json:"ids"`
}

// Validate checks if the replay request is valid.
func (r *ReplayRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.IDs,
			validation.Each(validation.By(validateUUID)),
		),
	)
}

// ParsedIDs returns the ids as UUIDs. Call Validate first.
func (r *ReplayRequest) ParsedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.IDs))
	for _, raw := range r.IDs {
		ids = append(ids, uuid.MustParse(raw))
	}
	return ids
}

func validateKind(value interface{}) error {
	kind, _ := value.(string)
	if !domain.OperationKind(kind).Valid() {
		return fmt.Errorf("must be one of %v", domain.OperationKinds)
	}
	return nil
}

func validateUUID(value interface{}) error {
	raw, _ := value.(string)
	if _, err := uuid.Parse(raw); err != nil {
		return fmt.Errorf("must be a valid UUID")
	}
	return nil
}
