// Package domain defines persisted session snapshots and the fast-path marker.
package domain

import (
	"time"

	"github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/projection"
)

// SessionRecord is the local snapshot of an authenticated session. User and
// config data hold flattened projections only; relational fields are stored
// as scalar ids. Records carry no time-based expiry.
type SessionRecord struct {
	ID           string
	UserData     map[string]any
	ConfigData   map[string]any
	OfflineMode  bool
	CreatedAt    time.Time
	LastAccessed time.Time
}

// UserID returns the id of the session user, if present.
func (s *SessionRecord) UserID() (int64, bool) {
	return identity(s.UserData)
}

// ConfigID returns the id of the session configuration, if present.
func (s *SessionRecord) ConfigID() (int64, bool) {
	return identity(s.ConfigData)
}

// Valid reports whether the record can be restored. An offline session
// needs a user identity; a server-issued session also needs a config identity.
func (s *SessionRecord) Valid() bool {
	if s == nil {
		return false
	}
	if _, ok := s.UserID(); !ok {
		return false
	}
	if s.OfflineMode {
		return true
	}
	_, ok := s.ConfigID()
	return ok
}

func identity(data map[string]any) (int64, bool) {
	if data == nil {
		return 0, false
	}
	raw, ok := projection.ID(data)
	if !ok {
		return 0, false
	}
	return projection.Int64(raw)
}

// LiveSession is the in-memory session handed over by the host.
type LiveSession struct {
	ID          string
	User        map[string]any
	Config      map[string]any
	OfflineMode bool
}

// Marker is the small fast-path record written next to every saved session.
type Marker struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id,omitempty"`
	SavedAt   time.Time `json:"saved_at"`
}

// Domain-specific errors for session operations.
var (
	// ErrSessionNotFound indicates no session is stored under the id.
	ErrSessionNotFound = errors.Wrap(errors.ErrNotFound, "session not found")

	// ErrInvalidSession indicates the session lacks the identities required to restore it.
	ErrInvalidSession = errors.Wrap(errors.ErrInvalidInput, "session has no user identity")
)
