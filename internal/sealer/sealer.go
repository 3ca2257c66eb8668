// Package sealer protects pending-operation payloads at rest with a
// gocloud.dev secrets keeper.
package sealer

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"

	apperrors "github.com/allisson/posoffline/internal/errors"

	// Register the keeper drivers usable on a terminal
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// ErrSealerDisabled is returned when sealing is requested without a keeper.
var ErrSealerDisabled = apperrors.Wrap(apperrors.ErrInvalidInput, "payload sealing is not configured")

// Sealer encrypts and decrypts payloads. The zero value is a disabled sealer.
type Sealer struct {
	keeper *secrets.Keeper
}

// New opens the keeper at keyURI. Supports base64key:// and hashivault://.
// An empty keyURI yields a disabled sealer.
func New(ctx context.Context, keyURI string) (*Sealer, error) {
	if keyURI == "" {
		return &Sealer{}, nil
	}
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open payload keeper: %w", err)
	}
	return &Sealer{keeper: keeper}, nil
}

// Enabled reports whether a keeper is configured.
func (s *Sealer) Enabled() bool {
	return s != nil && s.keeper != nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrSealerDisabled
	}
	ciphertext, err := s.keeper.Encrypt(ctx, plaintext)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to seal payload: "+err.Error())
	}
	return ciphertext, nil
}

// Open decrypts a payload produced by Seal.
func (s *Sealer) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if !s.Enabled() {
		return nil, ErrSealerDisabled
	}
	plaintext, err := s.keeper.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to open sealed payload: "+err.Error())
	}
	return plaintext, nil
}

// Close releases the keeper.
func (s *Sealer) Close() error {
	if !s.Enabled() {
		return nil
	}
	return s.keeper.Close()
}
