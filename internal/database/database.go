// Package database provides SQLite connection management and utilities.
package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// defaultPageSize is the SQLite page size used to turn a byte quota into max_page_count.
const defaultPageSize = 4096

// Config holds database configuration settings.
type Config struct {
	Path               string
	BusyTimeout        time.Duration
	QuotaBytes         int64
	MaxOpenConnections int
}

// DSN builds the modernc.org/sqlite data source name. Pragmas are passed as
// _pragma parameters so every pooled connection gets them.
func (c Config) DSN() string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(1)",
	}
	if pages := MaxPageCount(c.QuotaBytes); pages > 0 {
		pragmas = append(pragmas, fmt.Sprintf("max_page_count(%d)", pages))
	}

	params := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	return c.Path + "?" + strings.Join(params, "&")
}

// MaxPageCount converts a byte quota into a SQLite page ceiling. Zero means unbounded.
func MaxPageCount(quotaBytes int64) int64 {
	if quotaBytes <= 0 {
		return 0
	}
	pages := quotaBytes / defaultPageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

// Connect opens the SQLite file with the given configuration.
func Connect(cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("failed to open database: empty path")
	}

	db, err := sql.Open(DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids in-process lock
	// contention and leaves SQLITE_BUSY to other processes.
	maxOpen := cfg.MaxOpenConnections
	if maxOpen <= 0 {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
