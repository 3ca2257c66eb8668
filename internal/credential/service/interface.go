// Package service provides the offline secret derivation used by the credential cache.
package service

// Hasher derives and verifies offline secret hashes. Hashes are salted with
// a per-identity value (the remote user id) and never store the raw secret.
type Hasher interface {
	// Algorithm returns the configured derivation name.
	Algorithm() string

	// Hash derives a deterministic hex digest of secret salted with salt.
	Hash(secret, salt string) (string, error)

	// Verify compares secret against stored in constant time. stored may be
	// a hex digest produced by Hash or a PHC-encoded argon2id hash.
	Verify(secret, salt, stored string) bool
}
