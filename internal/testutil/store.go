// Package testutil provides helpers for tests that need a real durable store.
//
// Store Setup:
//
//	s := testutil.SetupStore(t)
//	testutil.CountRows(t, s, "pending_operations")
//
// Each store lives in its own SQLite file under t.TempDir() and is closed by
// t.Cleanup, so tests never share state.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/allisson/posoffline/internal/store"
)

// StoreConfig returns a store configuration pointing at a fresh temp file.
func StoreConfig(t *testing.T) store.Config {
	t.Helper()
	return store.Config{
		Path:        filepath.Join(t.TempDir(), "posoffline.db"),
		QuotaBytes:  64 * 1024 * 1024,
		BusyTimeout: 100 * time.Millisecond,
		MaxAttempts: 5,
		RetryBase:   time.Millisecond,
	}
}

// SetupStore opens a migrated store in a temp directory.
func SetupStore(t *testing.T) *store.Store {
	t.Helper()
	return OpenStore(t, StoreConfig(t))
}

// OpenStore opens (or reopens) the store described by cfg.
func OpenStore(t *testing.T, cfg store.Config) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, s *store.Store, table string) int {
	t.Helper()
	var count int
	err := s.DB().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	require.NoError(t, err)
	return count
}
