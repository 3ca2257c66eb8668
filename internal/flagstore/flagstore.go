// Package flagstore provides the small fast-path key-value slot used for
// cheap existence checks, such as the saved-session marker. Values are
// written synchronously so they survive an abrupt process teardown.
package flagstore

import (
	"context"
	"net/url"
	"strings"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

// ErrFlagNotFound indicates the key holds no value.
var ErrFlagNotFound = apperrors.Wrap(apperrors.ErrNotFound, "flag not found")

// Store is a minimal key-value store.
type Store interface {
	Set(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the store described by rawURL:
//
//	file://<dir>           one file per key under dir
//	redis://host:port/db   keys in Redis (rediss:// for TLS)
//	mem://                 process memory, for tests
func Open(rawURL string) (Store, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid flag store url: %v", err)
	}

	switch u.Scheme {
	case "file":
		dir := strings.TrimPrefix(rawURL, "file://")
		return NewFileStore(dir)
	case "redis", "rediss":
		return NewRedisStoreFromURL(rawURL)
	case "mem":
		return NewMemoryStore(), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrInvalidInput, "unsupported flag store scheme %q", u.Scheme)
	}
}
