// Package domain defines cached reference entities such as products and payment methods.
package domain

import (
	"time"

	"github.com/allisson/posoffline/internal/errors"
)

// EntityType names a set of reference entities replaced as a whole.
type EntityType string

// Known entity types.
const (
	EntityTypeProduct       EntityType = "product"
	EntityTypeCategory      EntityType = "category"
	EntityTypePaymentMethod EntityType = "payment_method"
	EntityTypeTax           EntityType = "tax"
)

// EntityTypes lists every known entity type.
var EntityTypes = []EntityType{
	EntityTypeProduct,
	EntityTypeCategory,
	EntityTypePaymentMethod,
	EntityTypeTax,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Entity is a flattened, JSON-safe projection of a remote record keyed by its remote id.
type Entity struct {
	Type     EntityType
	ID       int64
	Data     map[string]any
	CachedAt time.Time
}

// Key returns the storage key of the entity.
func (e *Entity) Key() string {
	return Key(e.Type, e.ID)
}

// Domain-specific errors for catalog operations.
var (
	// ErrEntityNotFound indicates no entity of the type is cached under the id.
	ErrEntityNotFound = errors.Wrap(errors.ErrNotFound, "entity not found")

	// ErrInvalidEntityType indicates an unknown entity type.
	ErrInvalidEntityType = errors.Wrap(errors.ErrInvalidInput, "invalid entity type")
)
