// Package usecase implements session persistence: snapshots of the active
// session in the durable store plus a fast-path marker, restore on cold
// start, periodic autosave and a best-effort save on teardown.
package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/projection"
	"github.com/allisson/posoffline/internal/session/domain"
)

// MarkerKey is the flag store key of the saved-session marker.
const MarkerKey = "session_marker"

// Config holds session persistence configuration.
type Config struct {
	AutosaveInterval time.Duration
	TeardownTimeout  time.Duration
}

// Persistence implements UseCase.
type Persistence struct {
	config Config
	repo   SessionRepository
	flags  FlagStore
	beacon Beacon
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	currentID string
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewPersistence creates a new Persistence. beacon may be nil.
func NewPersistence(
	config Config,
	repo SessionRepository,
	flags FlagStore,
	beacon Beacon,
	logger *slog.Logger,
) *Persistence {
	if config.AutosaveInterval <= 0 {
		config.AutosaveInterval = 5 * time.Minute
	}
	if config.TeardownTimeout <= 0 {
		config.TeardownTimeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Persistence{
		config: config,
		repo:   repo,
		flags:  flags,
		beacon: beacon,
		logger: logger,
		now:    time.Now,
	}
}

// Save flattens live and stores it as the current session.
func (p *Persistence) Save(ctx context.Context, live *domain.LiveSession) (*domain.SessionRecord, error) {
	if live == nil {
		return nil, domain.ErrInvalidSession
	}

	now := p.now().UTC().Truncate(time.Millisecond)
	record := &domain.SessionRecord{
		ID:           live.ID,
		UserData:     projection.Flatten(live.User),
		ConfigData:   projection.Flatten(live.Config),
		OfflineMode:  live.OfflineMode,
		CreatedAt:    now,
		LastAccessed: now,
	}
	if record.ID == "" {
		record.ID = p.CurrentSessionID()
	}
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		record.ID = id.String()
	}
	if !record.Valid() {
		return nil, domain.ErrInvalidSession
	}

	existing, err := p.repo.Get(ctx, record.ID)
	switch {
	case err == nil:
		record.CreatedAt = existing.CreatedAt
	case !apperrors.Is(err, domain.ErrSessionNotFound):
		return nil, err
	}

	if err := p.SaveRecord(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// SaveRecord stores an already projected record and makes it current.
func (p *Persistence) SaveRecord(ctx context.Context, record *domain.SessionRecord) error {
	if !record.Valid() {
		return domain.ErrInvalidSession
	}
	if err := p.repo.Save(ctx, record); err != nil {
		return err
	}
	if err := p.writeMarker(ctx, record.ID, record.UserData); err != nil {
		return err
	}

	p.mu.Lock()
	p.currentID = record.ID
	p.mu.Unlock()

	p.logger.Debug("session saved",
		slog.String("session_id", record.ID),
		slog.Bool("offline_mode", record.OfflineMode),
	)
	return nil
}

func (p *Persistence) writeMarker(ctx context.Context, sessionID string, user map[string]any) error {
	marker := domain.Marker{SessionID: sessionID, SavedAt: p.now().UTC()}
	if id, ok := projection.ID(user); ok {
		marker.UserID, _ = projection.Int64(id)
	}

	raw, err := json.Marshal(marker)
	if err != nil {
		return err
	}
	return p.flags.Set(ctx, MarkerKey, raw)
}

// Restore returns the session named by the fast-path marker. It returns nil
// without error when the marker or the record is missing or the record is
// not valid.
func (p *Persistence) Restore(ctx context.Context) (*domain.SessionRecord, error) {
	raw, err := p.flags.Get(ctx, MarkerKey)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var marker domain.Marker
	if err := json.Unmarshal(raw, &marker); err != nil || marker.SessionID == "" {
		p.logger.Warn("ignoring unreadable session marker", slog.Any("error", err))
		return nil, nil
	}

	record, err := p.repo.Get(ctx, marker.SessionID)
	if apperrors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !record.Valid() {
		p.logger.Warn("stored session is not valid", slog.String("session_id", record.ID))
		return nil, nil
	}

	now := p.now().UTC().Truncate(time.Millisecond)
	if err := p.repo.Touch(ctx, record.ID, now); err != nil {
		return nil, err
	}
	record.LastAccessed = now

	p.mu.Lock()
	p.currentID = record.ID
	p.mu.Unlock()

	p.logger.Info("session restored",
		slog.String("session_id", record.ID),
		slog.Bool("offline_mode", record.OfflineMode),
	)
	return record, nil
}

// StartAutosave saves the session returned by source every
// AutosaveInterval until Stop. A nil result from source skips the tick.
// Calling it while autosave runs is a no-op.
func (p *Persistence) StartAutosave(source func() *domain.LiveSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		return
	}

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	p.stopCh, p.doneCh = stopCh, doneCh

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(p.config.AutosaveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				live := source()
				if live == nil {
					continue
				}
				if _, err := p.Save(context.Background(), live); err != nil {
					p.logger.Warn("session autosave failed", slog.Any("error", err))
				}
			}
		}
	}()
}

// SaveOnTeardown writes the marker synchronously and fires the beacon
// without waiting for it. It never touches the durable store, so it is safe
// to call while the process is going away.
func (p *Persistence) SaveOnTeardown(live *domain.LiveSession) error {
	sessionID := p.CurrentSessionID()
	var user map[string]any
	if live != nil {
		if live.ID != "" {
			sessionID = live.ID
		}
		user = projection.Flatten(live.User)
	}
	if sessionID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.config.TeardownTimeout)
	defer cancel()
	err := p.writeMarker(ctx, sessionID, user)

	if p.beacon != nil {
		var userID int64
		if id, ok := projection.ID(user); ok {
			userID, _ = projection.Int64(id)
		}
		p.beacon.Beacon(sessionID, userID)
	}
	return err
}

// Logout removes the current session and its marker.
func (p *Persistence) Logout(ctx context.Context) error {
	id := p.CurrentSessionID()
	if id != "" {
		if err := p.repo.Delete(ctx, id); err != nil {
			return err
		}
	}
	if err := p.flags.Delete(ctx, MarkerKey); err != nil {
		return err
	}

	p.mu.Lock()
	p.currentID = ""
	p.mu.Unlock()
	return nil
}

// ClearOffline removes every locally fabricated session. When the current
// session was one of them the marker is cleared as well.
func (p *Persistence) ClearOffline(ctx context.Context) (int64, error) {
	removed, err := p.repo.DeleteOffline(ctx)
	if err != nil {
		return 0, err
	}

	id := p.CurrentSessionID()
	if id == "" {
		return removed, nil
	}
	if _, err := p.repo.Get(ctx, id); !apperrors.Is(err, domain.ErrSessionNotFound) {
		return removed, err
	}
	if err := p.flags.Delete(ctx, MarkerKey); err != nil {
		return removed, err
	}

	p.mu.Lock()
	p.currentID = ""
	p.mu.Unlock()
	return removed, nil
}

// Sweep removes sessions idle since before, never the current one.
func (p *Persistence) Sweep(ctx context.Context, before time.Time) (int64, error) {
	return p.repo.EvictIdle(ctx, before, p.CurrentSessionID())
}

// CurrentSessionID returns the id of the last saved or restored session.
func (p *Persistence) CurrentSessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentID
}

// Stop ends autosave and waits for it to exit. It is idempotent.
func (p *Persistence) Stop() {
	p.mu.Lock()
	stopCh, doneCh := p.stopCh, p.doneCh
	p.stopCh, p.doneCh = nil, nil
	p.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}
