package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/posoffline/internal/store"
)

func TestSetupStore(t *testing.T) {
	s := SetupStore(t)
	assert.False(t, s.Corrupted())

	for _, table := range store.RequiredTables {
		assert.Equal(t, 0, CountRows(t, s, table), table)
	}
}

func TestOpenStore_Reopen(t *testing.T) {
	cfg := StoreConfig(t)
	first := OpenStore(t, cfg)

	_, err := first.DB().ExecContext(context.Background(),
		"INSERT INTO config (key, value, updated_at) VALUES ('k', 'v', 0)")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := OpenStore(t, cfg)
	assert.Equal(t, 1, CountRows(t, second, store.TableConfig))
}
