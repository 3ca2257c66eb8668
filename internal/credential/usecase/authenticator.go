// Package usecase implements the credential cache and the offline authenticator.
package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/allisson/posoffline/internal/credential/domain"
	"github.com/allisson/posoffline/internal/credential/service"
	apperrors "github.com/allisson/posoffline/internal/errors"
	sessionDomain "github.com/allisson/posoffline/internal/session/domain"
)

// Config holds authenticator configuration
type Config struct {
	// AttemptsPerMinute is the sustained rate of offline logins allowed per login.
	AttemptsPerMinute float64
	// Burst is the number of offline logins allowed back to back per login.
	Burst int
}

// Authenticator implements UseCase.
type Authenticator struct {
	config   Config
	repo     CredentialRepository
	sessions SessionStore
	remote   RemoteValidator
	hasher   service.Hasher
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewAuthenticator creates a new Authenticator. remote may be nil on hosts
// that never validate online.
func NewAuthenticator(
	config Config,
	repo CredentialRepository,
	sessions SessionStore,
	remote RemoteValidator,
	hasher service.Hasher,
	logger *slog.Logger,
) *Authenticator {
	if config.AttemptsPerMinute <= 0 {
		config.AttemptsPerMinute = 5
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Authenticator{
		config:   config,
		repo:     repo,
		sessions: sessions,
		remote:   remote,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// CacheCredential stores remote keyed by login.
func (a *Authenticator) CacheCredential(
	ctx context.Context,
	remote *domain.RemoteCredential,
) (*domain.CachedCredential, error) {
	if remote == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "credential is required")
	}
	if err := remote.Validate(); err != nil {
		return nil, err
	}

	cached := remote.ToCached(a.now().UTC().Truncate(time.Millisecond))
	if err := a.repo.Upsert(ctx, cached); err != nil {
		return nil, err
	}
	return cached, nil
}

// AuthenticateOffline verifies secret against the credential cached for
// login and, on success, persists and returns a new offline session.
func (a *Authenticator) AuthenticateOffline(
	ctx context.Context,
	login, secret string,
) (*sessionDomain.SessionRecord, error) {
	if login == "" || secret == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "login and secret are required")
	}
	if !a.limiter(login).Allow() {
		a.logger.Warn("offline login rate limited", slog.String("login", login))
		return nil, domain.ErrTooManyAttempts
	}

	cached, err := a.repo.GetByLogin(ctx, login)
	if apperrors.Is(err, domain.ErrCredentialNotFound) {
		return nil, domain.ErrUserNotCached
	}
	if err != nil {
		return nil, err
	}

	if !a.hasher.Verify(secret, cached.Salt(), cached.SecretHash) {
		a.logger.Warn("offline login rejected", slog.String("login", login))
		return nil, domain.ErrInvalidSecret
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := a.now().UTC().Truncate(time.Millisecond)
	record := &sessionDomain.SessionRecord{
		ID: id.String(),
		UserData: map[string]any{
			"id":    cached.ID,
			"login": cached.Login,
			"name":  cached.DisplayName,
		},
		ConfigData:   map[string]any{},
		OfflineMode:  true,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if err := a.sessions.SaveRecord(ctx, record); err != nil {
		return nil, err
	}

	a.resetLimiter(login)
	a.logger.Info("offline login succeeded",
		slog.String("login", login),
		slog.String("session_id", record.ID),
	)
	return record, nil
}

// ValidateOnline defers verification to the remote authority and caches the
// returned credential so the user can later log in offline.
func (a *Authenticator) ValidateOnline(
	ctx context.Context,
	userID int64,
	secret string,
) (*domain.CachedCredential, error) {
	if a.remote == nil {
		return nil, apperrors.Wrap(apperrors.ErrTransport, "no remote validator configured")
	}

	secretHash, err := a.hasher.Hash(secret, domain.Salt(userID))
	if err != nil {
		return nil, err
	}

	remote, err := a.remote.ValidateCredential(ctx, userID, secretHash)
	if err != nil {
		return nil, err
	}
	if remote.ID == 0 {
		remote.ID = userID
	}
	if remote.SecretHash == "" {
		remote.SecretHash = secretHash
	}
	return a.CacheCredential(ctx, remote)
}

// RefreshFromRemote overwrites the cache with authoritative records. A
// conflicting write is recovered once by removing the record holding the
// login; records that still fail are counted and skipped.
func (a *Authenticator) RefreshFromRemote(
	ctx context.Context,
	records []*domain.RemoteCredential,
) (*domain.RefreshResult, error) {
	result := &domain.RefreshResult{}

	for _, remote := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		_, err := a.CacheCredential(ctx, remote)
		if apperrors.Is(err, apperrors.ErrConflict) {
			a.logger.Warn("credential conflict, removing cached record and retrying",
				slog.String("login", remote.Login),
			)
			if delErr := a.repo.DeleteByLogin(ctx, remote.Login); delErr != nil {
				err = apperrors.Join(err, delErr)
			} else if _, err = a.CacheCredential(ctx, remote); err == nil {
				result.Recovered++
			}
		}

		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			a.logger.Error("failed to refresh credential", slog.Any("error", err))
			continue
		}
		result.Cached++
	}
	return result, nil
}

// List returns every cached credential.
func (a *Authenticator) List(ctx context.Context) ([]*domain.CachedCredential, error) {
	return a.repo.List(ctx)
}

// Clear removes every cached credential and the offline sessions built from them.
func (a *Authenticator) Clear(ctx context.Context) error {
	removed, err := a.repo.Clear(ctx)
	if err != nil {
		return err
	}
	sessions, err := a.sessions.ClearOffline(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.limiters = make(map[string]*rate.Limiter)
	a.mu.Unlock()

	a.logger.Info("credential cache cleared",
		slog.Int64("credentials", removed),
		slog.Int64("sessions", sessions),
	)
	return nil
}

func (a *Authenticator) limiter(login string) *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()

	l, ok := a.limiters[login]
	if !ok {
		l = rate.NewLimiter(rate.Limit(a.config.AttemptsPerMinute/60), a.config.Burst)
		a.limiters[login] = l
	}
	return l
}

func (a *Authenticator) resetLimiter(login string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.limiters, login)
}
