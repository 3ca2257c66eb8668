package flagstore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	apperrors "github.com/allisson/posoffline/internal/errors"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9._\-]+$`)

// FileStore keeps one file per key in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a FileStore over it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "flag store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, apperrors.Wrap(err, "failed to create flag store directory")
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if !keyPattern.MatchString(key) {
		return "", apperrors.Wrapf(apperrors.ErrInvalidInput, "invalid flag key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

// Set writes value through a temp file and rename so readers never see a partial value.
func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*")
	if err != nil {
		return apperrors.Wrap(err, "failed to create flag file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(err, "failed to write flag file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return apperrors.Wrap(err, "failed to sync flag file")
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Wrap(err, "failed to close flag file")
	}
	return os.Rename(tmp.Name(), path)
}

// Get returns the value of key or ErrFlagNotFound.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	value, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrFlagNotFound
	}
	return value, err
}

// Delete removes key. Removing a missing key is not an error.
func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error {
	return nil
}
