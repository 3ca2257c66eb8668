// Package lifecycle exposes the hooks the host calls after its initial data
// load: populate the offline caches on success, fall back to the cached
// session when the load failed for lack of connectivity.
package lifecycle

import (
	"context"
	"log/slog"

	catalogDomain "github.com/allisson/posoffline/internal/catalog/domain"
	catalogUsecase "github.com/allisson/posoffline/internal/catalog/usecase"
	credentialDomain "github.com/allisson/posoffline/internal/credential/domain"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/remote"
	sessionDomain "github.com/allisson/posoffline/internal/session/domain"
)

// ErrNoCachedSession is returned when the server is unreachable and nothing
// was cached by an earlier online load.
var ErrNoCachedSession = apperrors.Wrap(
	apperrors.ErrNotFound,
	"server unreachable and no cached session: connect once while online to enable offline mode",
)

// SessionStore saves and restores the current session.
type SessionStore interface {
	Save(ctx context.Context, live *sessionDomain.LiveSession) (*sessionDomain.SessionRecord, error)
	Restore(ctx context.Context) (*sessionDomain.SessionRecord, error)
}

// Credentials refreshes the credential cache.
type Credentials interface {
	RefreshFromRemote(
		ctx context.Context,
		records []*credentialDomain.RemoteCredential,
	) (*credentialDomain.RefreshResult, error)
}

// Catalog replaces cached reference entity sets.
type Catalog interface {
	Replace(
		ctx context.Context,
		t catalogDomain.EntityType,
		records []map[string]any,
	) (*catalogUsecase.ReplaceResult, error)
}

// LoadedData is what the host loaded from the server.
type LoadedData struct {
	Session     *sessionDomain.LiveSession
	Credentials []*credentialDomain.RemoteCredential
	Reference   map[catalogDomain.EntityType][]map[string]any
}

// LoadResult reports what OnLoadSuccess cached.
type LoadResult struct {
	Session     *sessionDomain.SessionRecord     `json:"session,omitempty"`
	Credentials *credentialDomain.RefreshResult  `json:"credentials,omitempty"`
	Entities    map[catalogDomain.EntityType]int `json:"entities,omitempty"`
}

// Hooks wires the host load lifecycle to the offline caches.
type Hooks struct {
	sessions    SessionStore
	credentials Credentials
	catalog     Catalog
	logger      *slog.Logger
}

// NewHooks creates Hooks. credentials and catalog may be nil.
func NewHooks(sessions SessionStore, credentials Credentials, catalog Catalog, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hooks{
		sessions:    sessions,
		credentials: credentials,
		catalog:     catalog,
		logger:      logger,
	}
}

// OnLoadSuccess caches the credentials and reference sets in data and saves
// the session. Every step runs even when an earlier one fails; the returned
// error joins all failures.
func (h *Hooks) OnLoadSuccess(ctx context.Context, data LoadedData) (*LoadResult, error) {
	result := &LoadResult{}
	var errs []error

	if h.credentials != nil && len(data.Credentials) > 0 {
		refreshed, err := h.credentials.RefreshFromRemote(ctx, data.Credentials)
		result.Credentials = refreshed
		if err != nil {
			errs = append(errs, err)
		}
	}

	if h.catalog != nil && len(data.Reference) > 0 {
		result.Entities = make(map[catalogDomain.EntityType]int, len(data.Reference))
		for t, records := range data.Reference {
			replaced, err := h.catalog.Replace(ctx, t, records)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			result.Entities[t] = replaced.Stored
		}
	}

	if data.Session != nil {
		record, err := h.sessions.Save(ctx, data.Session)
		if err != nil {
			errs = append(errs, err)
		}
		result.Session = record
	}

	err := apperrors.Join(errs...)
	if err != nil {
		h.logger.Warn("offline cache population incomplete", slog.Any("error", err))
	} else {
		h.logger.Info("offline caches populated",
			slog.Int("credentials", len(data.Credentials)),
			slog.Int("reference_sets", len(data.Reference)),
		)
	}
	return result, err
}

// OnLoadFailure restores the cached session when cause is a connectivity
// failure. Any other cause, such as a rejected credential or a server error,
// is returned unchanged.
func (h *Hooks) OnLoadFailure(ctx context.Context, cause error) (*sessionDomain.SessionRecord, error) {
	if cause == nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "load failure cause is required")
	}
	if !remote.IsConnectivityFailure(cause) {
		return nil, cause
	}

	h.logger.Warn("server unreachable, restoring cached session", slog.Any("cause", cause))

	record, err := h.sessions.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNoCachedSession
	}
	return record, nil
}

// Source is the remote the initial load reads from.
type Source interface {
	FetchCredentials(ctx context.Context) ([]*credentialDomain.RemoteCredential, error)
	FetchReferenceData(ctx context.Context, entityType string) ([]map[string]any, error)
}

// Outcome reports how a Load ended.
type Outcome struct {
	Online   bool                         `json:"online"`
	Result   *LoadResult                  `json:"result,omitempty"`
	Restored *sessionDomain.SessionRecord `json:"restored,omitempty"`
}

// Load performs the initial load from source. When every fetch succeeds the
// data goes through OnLoadSuccess and the previous session is restored;
// otherwise the first failure goes through OnLoadFailure. Reference sets the
// server does not publish are skipped.
func (h *Hooks) Load(ctx context.Context, source Source, types []catalogDomain.EntityType) (*Outcome, error) {
	records, err := source.FetchCredentials(ctx)
	if err != nil {
		return h.fail(ctx, err)
	}

	reference := make(map[catalogDomain.EntityType][]map[string]any, len(types))
	for _, t := range types {
		entities, err := source.FetchReferenceData(ctx, string(t))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return h.fail(ctx, err)
		}
		reference[t] = entities
	}

	result, err := h.OnLoadSuccess(ctx, LoadedData{Credentials: records, Reference: reference})
	outcome := &Outcome{Online: true, Result: result}
	if err != nil {
		return outcome, err
	}

	outcome.Restored, err = h.sessions.Restore(ctx)
	return outcome, err
}

func (h *Hooks) fail(ctx context.Context, cause error) (*Outcome, error) {
	restored, err := h.OnLoadFailure(ctx, cause)
	return &Outcome{Restored: restored}, err
}
