// Package repository provides SQLite persistence for cached credentials.
package repository

import (
	"context"
	"time"

	"github.com/allisson/posoffline/internal/credential/domain"
	"github.com/allisson/posoffline/internal/database"
	apperrors "github.com/allisson/posoffline/internal/errors"
	"github.com/allisson/posoffline/internal/store"
)

const indexLogin = "by_login"

var credentialTables = []string{store.TableCredentials}

var credentialTable = store.Table[domain.CachedCredential]{
	Name:    store.TableCredentials,
	Key:     "id",
	Columns: []string{"id", "login", "display_name", "secret_hash", "cached_at"},
	Indexes: map[string]string{indexLogin: "login"},
	OrderBy: "login",
	Values: func(c *domain.CachedCredential) ([]any, error) {
		return []any{c.ID, c.Login, c.DisplayName, c.SecretHash, c.CachedAt.UnixMilli()}, nil
	},
	Scan: func(row store.Scanner) (*domain.CachedCredential, error) {
		var (
			c        domain.CachedCredential
			cachedAt int64
		)
		if err := row.Scan(&c.ID, &c.Login, &c.DisplayName, &c.SecretHash, &cachedAt); err != nil {
			return nil, err
		}
		c.CachedAt = time.UnixMilli(cachedAt).UTC()
		return &c, nil
	},
}

// SQLiteCredentialRepository persists cached credentials.
type SQLiteCredentialRepository struct {
	store *store.Store
}

// NewSQLiteCredentialRepository creates a new SQLiteCredentialRepository.
func NewSQLiteCredentialRepository(s *store.Store) *SQLiteCredentialRepository {
	return &SQLiteCredentialRepository{store: s}
}

// Upsert stores c keyed by login. A record already cached under the same
// login is merged into c: a zero c.ID reuses the cached id, otherwise the
// remote id replaces it. Login stays unique either way.
func (r *SQLiteCredentialRepository) Upsert(ctx context.Context, c *domain.CachedCredential) error {
	return r.store.Do(ctx, credentialTables, func(ctx context.Context) error {
		existing, err := r.GetByLogin(ctx, c.Login)
		switch {
		case err == nil:
			if c.ID == 0 {
				c.ID = existing.ID
			}
			if existing.ID != c.ID {
				if err := store.Delete(ctx, r.store, credentialTable, existing.ID); err != nil {
					return err
				}
			}
		case !apperrors.Is(err, domain.ErrCredentialNotFound):
			return err
		}

		if c.ID == 0 {
			return apperrors.Wrapf(apperrors.ErrInvalidInput, "credential %q has no id", c.Login)
		}
		return store.Put(ctx, r.store, credentialTable, c)
	})
}

// GetByLogin returns the credential cached under login or ErrCredentialNotFound.
func (r *SQLiteCredentialRepository) GetByLogin(ctx context.Context, login string) (*domain.CachedCredential, error) {
	records, err := store.Query(ctx, r.store, credentialTable, indexLogin, login)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrCredentialNotFound
	}
	return records[0], nil
}

// GetByID returns the credential with the remote id or ErrCredentialNotFound.
func (r *SQLiteCredentialRepository) GetByID(ctx context.Context, id int64) (*domain.CachedCredential, error) {
	c, err := store.Get(ctx, r.store, credentialTable, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, domain.ErrCredentialNotFound
	}
	return c, err
}

// List returns every cached credential ordered by login.
func (r *SQLiteCredentialRepository) List(ctx context.Context) ([]*domain.CachedCredential, error) {
	return store.GetAll(ctx, r.store, credentialTable)
}

// DeleteByLogin removes the credential cached under login.
func (r *SQLiteCredentialRepository) DeleteByLogin(ctx context.Context, login string) error {
	return r.store.Do(ctx, credentialTables, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		_, err := querier.ExecContext(ctx, "DELETE FROM credentials WHERE login = ?", login)
		return err
	})
}

// Clear removes every cached credential and returns how many were removed.
func (r *SQLiteCredentialRepository) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := r.store.Do(ctx, credentialTables, func(ctx context.Context) error {
		querier := database.GetTx(ctx, r.store.DB())
		result, err := querier.ExecContext(ctx, "DELETE FROM credentials")
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	return removed, err
}
