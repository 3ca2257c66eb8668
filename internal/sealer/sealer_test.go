package sealer

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateLocalSecretsURI(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return "base64key://" + base64.URLEncoding.EncodeToString(key)
}

func TestSealer_RoundTrip(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, generateLocalSecretsURI(t))
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, s.Close())
	}()

	assert.True(t, s.Enabled())

	plaintext := []byte(`{"order_id":42,"amount":12.5}`)
	ciphertext, err := s.Seal(ctx, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	opened, err := s.Open(ctx, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealer_WrongKeyFails(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, generateLocalSecretsURI(t))
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	b, err := New(ctx, generateLocalSecretsURI(t))
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	ciphertext, err := a.Seal(ctx, []byte("payload"))
	require.NoError(t, err)

	_, err = b.Open(ctx, ciphertext)
	assert.Error(t, err)
}

func TestSealer_Disabled(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, "")
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Close())

	_, err = s.Seal(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrSealerDisabled)

	_, err = s.Open(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrSealerDisabled)

	var zero *Sealer
	assert.False(t, zero.Enabled())
}

func TestNew_InvalidURI(t *testing.T) {
	s, err := New(context.Background(), "invalid://uri")
	assert.Error(t, err)
	assert.Nil(t, s)
	assert.Contains(t, err.Error(), "failed to open payload keeper")
}
