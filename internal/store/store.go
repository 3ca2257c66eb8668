// Package store implements the durable local store: a SQLite file holding
// sessions, cached credentials, configuration, the pending-operation queue,
// sync errors and cached reference entities.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
)

// Table names.
const (
	TableSessions          = "sessions"
	TableCredentials       = "credentials"
	TableConfig            = "config"
	TablePendingOperations = "pending_operations"
	TableSyncErrors        = "sync_errors"
	TableReferenceEntities = "reference_entities"
)

// RequiredTables lists the tables every healthy store must contain.
var RequiredTables = []string{
	TableSessions,
	TableCredentials,
	TableConfig,
	TablePendingOperations,
	TableSyncErrors,
	TableReferenceEntities,
}

// Config holds durable store settings.
type Config struct {
	Path        string
	QuotaBytes  int64
	BusyTimeout time.Duration
	MaxAttempts int
	RetryBase   time.Duration
}

// Store is the durable local store.
type Store struct {
	db        *sql.DB
	txManager database.TxManager
	locks     *keyedMutex
	cfg       Config
	logger    *slog.Logger
	corrupted atomic.Bool
	sleep     func(ctx context.Context, d time.Duration) error
}

// Open connects to the SQLite file, applies pending migrations and verifies
// the schema. A store held by another process mid-upgrade yields
// ErrStoreBlocked; a missing table or failed integrity check only flags the
// store as corrupted.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	db, err := database.Connect(database.Config{
		Path:        cfg.Path,
		BusyTimeout: cfg.BusyTimeout,
		QuotaBytes:  cfg.QuotaBytes,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, err.Error())
	}

	s := New(db, cfg, logger)

	if err := database.Migrate(db); err != nil {
		switch {
		case apperrors.Is(err, database.ErrDirty):
			s.logger.Warn("store schema is dirty", slog.Any("error", err))
			s.corrupted.Store(true)
		case apperrors.Is(err, apperrors.ErrAborted):
			_ = db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStoreBlocked, err.Error())
		default:
			_ = db.Close()
			return nil, err
		}
	}

	if err := s.Verify(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// New wraps an already opened database without running migrations.
func New(db *sql.DB, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 25 * time.Millisecond
	}

	return &Store{
		db:        db,
		txManager: database.NewTxManager(db),
		locks:     newKeyedMutex(),
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Corrupted reports whether the last verification found a damaged schema.
func (s *Store) Corrupted() bool {
	return s.corrupted.Load()
}

// Verify checks that every required table exists and that SQLite's quick
// integrity check passes, updating the corrupted flag. Only failures to run
// the checks at all are returned.
func (s *Store) Verify(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		return database.Classify(err)
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return database.Classify(err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return database.Classify(err)
	}

	var missing []string
	for _, table := range RequiredTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}

	var check string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		return database.Classify(err)
	}

	if len(missing) > 0 || check != "ok" {
		s.logger.Warn("store failed verification",
			slog.Any("missing_tables", missing),
			slog.String("quick_check", check),
		)
		s.corrupted.Store(true)
		return nil
	}

	s.corrupted.Store(false)
	return nil
}

// Reset drops every engine table and recreates the schema from scratch.
func (s *Store) Reset(ctx context.Context) error {
	tables := append([]string{"schema_meta", "schema_migrations"}, RequiredTables...)
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return database.Classify(err)
		}
	}

	if err := database.Migrate(s.db); err != nil {
		return err
	}

	s.logger.Info("store reset")
	return s.Verify(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
