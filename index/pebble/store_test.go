package pebble

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/davidvella/pagestore/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := NewStore(StoreOptions{Path: path, CacheSize: 1 << 20})
	require.NoError(t, err)
	return s
}

func TestStore_LoadEmpty(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "users.pebble"))
	defer s.Close()

	m, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.pebble")

	s := newTestStore(t, path)
	m := index.NewMap()
	m.Set("1", 0)
	m.Set("2", 0)
	m.Set("3", 7)
	require.NoError(t, s.Save(ctx, m))
	assert.False(t, m.Dirty())

	m.Remove("2")
	m.Set("3", 1)
	require.NoError(t, s.Save(ctx, m))
	require.NoError(t, s.Close())

	// Reopen to make sure the changes were persisted.
	s = newTestStore(t, path)
	defer s.Close()

	loaded, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"1": 0, "3": 1}, loaded.Entries())
}

func TestStore_SaveClean(t *testing.T) {
	s := newTestStore(t, filepath.Join(t.TempDir(), "users.pebble"))
	defer s.Close()

	assert.NoError(t, s.Save(context.Background(), index.NewMap()))
}

func TestUpperBound(t *testing.T) {
	assert.Equal(t, []byte("id0"), upperBound([]byte("id/")))
	assert.Equal(t, []byte("id/"), keyPrefix, "prefix must not be modified")
}
