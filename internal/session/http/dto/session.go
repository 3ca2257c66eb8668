// Package dto provides data transfer objects for the session endpoints.
package dto

import (
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/posoffline/internal/session/domain"
)

// SaveSessionRequest carries the live session the host wants persisted.
type SaveSessionRequest struct {
	ID          string         `json:"id"`
	User        map[string]any `json:"user"`
	Config      map[string]any `json:"config"`
	OfflineMode bool           `json:"offline_mode"`
}

// Validate checks if the save request is valid.
func (r *SaveSessionRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.User, validation.Required),
	)
}

// ToLiveSession converts the request to a live session.
func (r *SaveSessionRequest) ToLiveSession() *domain.LiveSession {
	return &domain.LiveSession{
		ID:          r.ID,
		User:        r.User,
		Config:      r.Config,
		OfflineMode: r.OfflineMode,
	}
}

// SessionResponse represents a persisted session in API responses.
type SessionResponse struct {
	ID           string         `json:"id"`
	User         map[string]any `json:"user"`
	Config       map[string]any `json:"config"`
	OfflineMode  bool           `json:"offline_mode"`
	CreatedAt    time.Time      `json:"created_at"`
	LastAccessed time.Time      `json:"last_accessed"`
}

// MapSessionToResponse converts a session record to an API response.
func MapSessionToResponse(record *domain.SessionRecord) SessionResponse {
	return SessionResponse{
		ID:           record.ID,
		User:         record.UserData,
		Config:       record.ConfigData,
		OfflineMode:  record.OfflineMode,
		CreatedAt:    record.CreatedAt,
		LastAccessed: record.LastAccessed,
	}
}
