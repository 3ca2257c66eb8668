// Package errors provides standardized domain errors that express business intent
// rather than storage or transport details. Use cases return these errors and
// handlers map them to HTTP status codes or CLI exit messages.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness constraint would be violated (e.g., duplicate login).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller doesn't have permission.
	ErrForbidden = errors.New("forbidden")

	// ErrLocked indicates too many recent failed attempts for the subject.
	ErrLocked = errors.New("locked")
)

// Storage and sync errors.
var (
	// ErrStorage indicates the durable store failed in a way retries could not recover.
	ErrStorage = errors.New("storage failure")

	// ErrAborted indicates a unit of work was aborted by lock contention and may be retried.
	ErrAborted = errors.New("unit of work aborted")

	// ErrQuotaExceeded indicates the durable store has no room left for the write.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrStoreBlocked indicates another process holds the store during a schema upgrade.
	ErrStoreBlocked = errors.New("store blocked by another connection")

	// ErrTransport indicates the remote server could not be reached or failed with a 5xx.
	ErrTransport = errors.New("transport failure")

	// ErrAuth indicates the remote server or the offline authenticator rejected the credentials.
	ErrAuth = errors.New("authentication failed")

	// ErrCannotSyncOffline indicates a sync was requested while the server is unreachable.
	ErrCannotSyncOffline = errors.New("cannot sync while offline")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is like Wrap but formats the message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
