package usecase

import (
	"context"
	"time"

	"github.com/allisson/posoffline/internal/session/domain"
)

// SessionRepository defines session snapshot persistence.
type SessionRepository interface {
	Save(ctx context.Context, s *domain.SessionRecord) error
	Get(ctx context.Context, id string) (*domain.SessionRecord, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteOffline(ctx context.Context) (int64, error)
	EvictIdle(ctx context.Context, cutoff time.Time, keepID string) (int64, error)
}

// FlagStore is the fast-path slot holding the session marker.
type FlagStore interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Beacon transmits a best-effort session backup that must not block the caller.
type Beacon interface {
	Beacon(sessionID string, userID int64)
}

// UseCase defines session persistence operations.
type UseCase interface {
	Save(ctx context.Context, live *domain.LiveSession) (*domain.SessionRecord, error)
	SaveRecord(ctx context.Context, record *domain.SessionRecord) error
	Restore(ctx context.Context) (*domain.SessionRecord, error)
	StartAutosave(source func() *domain.LiveSession)
	SaveOnTeardown(live *domain.LiveSession) error
	Logout(ctx context.Context) error
	ClearOffline(ctx context.Context) (int64, error)
	Sweep(ctx context.Context, before time.Time) (int64, error)
	CurrentSessionID() string
	Stop()
}
