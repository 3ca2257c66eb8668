package service

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/allisson/go-pwdhash"
	"golang.org/x/crypto/argon2"

	"github.com/allisson/posoffline/internal/credential/domain"
	apperrors "github.com/allisson/posoffline/internal/errors"
)

// Supported derivations.
const (
	AlgorithmSHA256   = "sha256"
	AlgorithmArgon2ID = "argon2id"
)

const phcArgon2Prefix = "$argon2id$"

// Argon2Params holds the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultArgon2Params matches the interactive argon2id profile.
var DefaultArgon2Params = Argon2Params{Time: 3, Memory: 64 * 1024, Threads: 4, KeyLen: 32}

type hasher struct {
	algorithm string
	params    Argon2Params
	phc       *pwdhash.PasswordHasher
}

// NewHasher creates a Hasher for algorithm ("sha256" or "argon2id").
func NewHasher(algorithm string) (Hasher, error) {
	return NewHasherWithParams(algorithm, DefaultArgon2Params)
}

// NewHasherWithParams creates a Hasher with explicit argon2id costs.
func NewHasherWithParams(algorithm string, params Argon2Params) (Hasher, error) {
	switch algorithm {
	case AlgorithmSHA256, AlgorithmArgon2ID:
	default:
		return nil, apperrors.Wrapf(domain.ErrUnsupportedAlgorithm, "%q", algorithm)
	}

	phc, err := pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create password hasher")
	}

	return &hasher{algorithm: algorithm, params: params, phc: phc}, nil
}

// Algorithm returns the configured derivation name.
func (h *hasher) Algorithm() string {
	return h.algorithm
}

// Hash derives the salted digest of secret.
func (h *hasher) Hash(secret, salt string) (string, error) {
	if secret == "" {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, "secret is required")
	}

	switch h.algorithm {
	case AlgorithmArgon2ID:
		saltDigest := sha256.Sum256([]byte(salt))
		key := argon2.IDKey(
			[]byte(secret),
			saltDigest[:],
			h.params.Time,
			h.params.Memory,
			h.params.Threads,
			h.params.KeyLen,
		)
		return hex.EncodeToString(key), nil
	default:
		digest := sha256.Sum256([]byte(secret + salt))
		return hex.EncodeToString(digest[:]), nil
	}
}

// Verify reports whether secret matches stored.
func (h *hasher) Verify(secret, salt, stored string) bool {
	if secret == "" || stored == "" {
		return false
	}

	if strings.HasPrefix(stored, phcArgon2Prefix) {
		ok, err := h.phc.Verify([]byte(secret), stored)
		return err == nil && ok
	}

	computed, err := h.Hash(secret, salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(stored))) == 1
}
