// Package domain defines the cached credential entities used for offline authentication.
package domain

import (
	"strconv"
	"time"

	validation "github.com/jellydator/validation"

	"github.com/allisson/posoffline/internal/errors"
	customValidation "github.com/allisson/posoffline/internal/validation"
)

// CachedCredential is the local copy of a remote user record sufficient to
// verify a secret offline. ID always equals the remote id and Login is unique.
type CachedCredential struct {
	ID          int64
	Login       string
	DisplayName string
	SecretHash  string
	CachedAt    time.Time
}

// Salt returns the per-identity salt mixed into the secret hash.
func (c *CachedCredential) Salt() string {
	return Salt(c.ID)
}

// Salt returns the per-identity salt for a remote user id.
func Salt(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// RemoteCredential is a user record as delivered by the remote authority.
type RemoteCredential struct {
	ID         int64  `json:"id"`
	Login      string `json:"login"`
	Name       string `json:"name"`
	SecretHash string `json:"pin_hash"`
}

// Validate checks that the record can be cached.
func (r *RemoteCredential) Validate() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Login, validation.Required, customValidation.NotBlank, validation.Length(1, 255)),
		validation.Field(&r.SecretHash, validation.Required, customValidation.NoWhitespace),
	)
	return customValidation.WrapValidationError(err)
}

// ToCached converts the remote record into its cached form.
func (r *RemoteCredential) ToCached(now time.Time) *CachedCredential {
	return &CachedCredential{
		ID:          r.ID,
		Login:       r.Login,
		DisplayName: r.Name,
		SecretHash:  r.SecretHash,
		CachedAt:    now,
	}
}

// RefreshResult summarizes a bulk credential refresh.
type RefreshResult struct {
	Cached    int     `json:"cached"`
	Recovered int     `json:"recovered"`
	Failed    int     `json:"failed"`
	Errors    []error `json:"-"`
}

// Domain-specific errors for credential operations.
var (
	// ErrCredentialNotFound indicates no credential is cached under the login or id.
	ErrCredentialNotFound = errors.Wrap(errors.ErrNotFound, "credential not found")

	// ErrUserNotCached indicates an offline login for a user who never logged in online on this terminal.
	ErrUserNotCached = errors.Wrap(
		errors.ErrAuth,
		"user is not cached on this terminal: log in once while connected to enable offline login",
	)

	// ErrInvalidSecret indicates the secret does not match the cached hash.
	ErrInvalidSecret = errors.Wrap(errors.ErrAuth, "invalid secret")

	// ErrTooManyAttempts indicates the offline attempt limit for the login was reached.
	ErrTooManyAttempts = errors.Wrap(errors.ErrLocked, "too many offline login attempts, try again later")

	// ErrUnsupportedAlgorithm indicates an unknown hash algorithm was configured.
	ErrUnsupportedAlgorithm = errors.Wrap(errors.ErrInvalidInput, "unsupported hash algorithm")
)
