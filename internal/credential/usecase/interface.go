package usecase

import (
	"context"

	"github.com/allisson/posoffline/internal/credential/domain"
	sessionDomain "github.com/allisson/posoffline/internal/session/domain"
)

// CredentialRepository defines cached credential persistence.
type CredentialRepository interface {
	Upsert(ctx context.Context, c *domain.CachedCredential) error
	GetByLogin(ctx context.Context, login string) (*domain.CachedCredential, error)
	GetByID(ctx context.Context, id int64) (*domain.CachedCredential, error)
	List(ctx context.Context) ([]*domain.CachedCredential, error)
	DeleteByLogin(ctx context.Context, login string) error
	Clear(ctx context.Context) (int64, error)
}

// SessionStore receives the sessions fabricated by offline logins.
type SessionStore interface {
	SaveRecord(ctx context.Context, record *sessionDomain.SessionRecord) error
	ClearOffline(ctx context.Context) (int64, error)
}

// RemoteValidator checks a secret hash against the remote authority.
type RemoteValidator interface {
	ValidateCredential(ctx context.Context, userID int64, secretHash string) (*domain.RemoteCredential, error)
}

// UseCase defines the credential cache and offline authenticator.
type UseCase interface {
	CacheCredential(ctx context.Context, remote *domain.RemoteCredential) (*domain.CachedCredential, error)
	AuthenticateOffline(ctx context.Context, login, secret string) (*sessionDomain.SessionRecord, error)
	ValidateOnline(ctx context.Context, userID int64, secret string) (*domain.CachedCredential, error)
	RefreshFromRemote(ctx context.Context, records []*domain.RemoteCredential) (*domain.RefreshResult, error)
	List(ctx context.Context) ([]*domain.CachedCredential, error)
	Clear(ctx context.Context) error
}
