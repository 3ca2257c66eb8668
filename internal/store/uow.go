package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
)

// UnitOfWork runs fn atomically over the named tables.
type UnitOfWork interface {
	Do(ctx context.Context, tables []string, fn func(ctx context.Context) error) error
}

// Do runs fn in a single transaction covering tables. Work over the same
// table set is serialized; a unit aborted by lock contention is retried with
// exponential backoff up to the configured attempt ceiling and then reported
// as ErrStorage. Calls made from inside another unit of work join it.
func (s *Store) Do(ctx context.Context, tables []string, fn func(ctx context.Context) error) error {
	if database.HasTx(ctx) {
		return fn(ctx)
	}

	key := tableSetKey(tables)
	unlock := s.locks.Lock(key)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxAttempts; attempt++ {
		err := database.Classify(s.txManager.WithTx(ctx, fn))
		if err == nil {
			return nil
		}
		if !apperrors.Is(err, apperrors.ErrAborted) {
			return err
		}

		lastErr = err
		s.logger.Debug("unit of work aborted",
			slog.String("table_set", key),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)

		if attempt == s.cfg.MaxAttempts-1 {
			break
		}
		if err := s.sleep(ctx, s.cfg.RetryBase<<attempt); err != nil {
			return err
		}
	}

	s.logger.Error("unit of work exhausted retries",
		slog.String("table_set", key),
		slog.Int("attempts", s.cfg.MaxAttempts),
		slog.Any("error", lastErr),
	)
	return apperrors.Wrapf(apperrors.ErrStorage, "unit of work on %s failed after %d attempts: %v",
		key, s.cfg.MaxAttempts, lastErr)
}

func tableSetKey(tables []string) string {
	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// keyedMutex hands out one mutex per key and forgets keys nobody waits on.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
