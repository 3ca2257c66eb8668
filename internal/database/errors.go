package database

import (
	"context"
	"database/sql"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

// Classify maps SQLite driver errors onto the domain error taxonomy:
// busy/locked become ErrAborted, full becomes ErrQuotaExceeded, unique
// violations become ErrConflict and any other driver error becomes ErrStorage.
// Errors that did not come from the driver are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) || apperrors.Is(err, sql.ErrNoRows) {
		return err
	}

	var sqliteErr *sqlite.Error
	if apperrors.As(err, &sqliteErr) {
		return classifyCode(sqliteErr.Code(), err)
	}

	return classifyMessage(err)
}

func isClassified(err error) bool {
	for _, target := range []error{
		apperrors.ErrNotFound,
		apperrors.ErrConflict,
		apperrors.ErrInvalidInput,
		apperrors.ErrAborted,
		apperrors.ErrQuotaExceeded,
		apperrors.ErrStorage,
		apperrors.ErrStoreBlocked,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if apperrors.Is(err, target) {
			return true
		}
	}
	return false
}

func classifyCode(code int, err error) error {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return apperrors.Wrap(apperrors.ErrAborted, err.Error())
	case sqlite3.SQLITE_FULL:
		return apperrors.Wrap(apperrors.ErrQuotaExceeded, err.Error())
	case sqlite3.SQLITE_CONSTRAINT:
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return apperrors.Wrap(apperrors.ErrConflict, err.Error())
		}
	}
	return apperrors.Wrap(apperrors.ErrStorage, err.Error())
}

// classifyMessage covers errors whose driver type was lost on the way up
// (wrapped by database/sql or produced by test doubles).
func classifyMessage(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "database table is locked"):
		return apperrors.Wrap(apperrors.ErrAborted, err.Error())
	case strings.Contains(msg, "database or disk is full"),
		strings.Contains(msg, "sqlite_full"):
		return apperrors.Wrap(apperrors.ErrQuotaExceeded, err.Error())
	case strings.Contains(msg, "unique constraint failed"):
		return apperrors.Wrap(apperrors.ErrConflict, err.Error())
	case strings.Contains(msg, "sqlite"), strings.Contains(msg, "sql:"):
		return apperrors.Wrap(apperrors.ErrStorage, err.Error())
	}
	return err
}
