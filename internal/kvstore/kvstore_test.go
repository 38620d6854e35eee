package kvstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercise runs the behaviour both implementations must share.
func exercise(t *testing.T, s Store) {
	t.Helper()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("a", "2"))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))
	_, ok, _ = s.Get("a")
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore(0))
}

func TestFileStore(t *testing.T) {
	exercise(t, NewFileStore(filepath.Join(t.TempDir(), "nested", "store.json"), 0))
}

func TestMemoryStoreQuota(t *testing.T) {
	s := NewMemoryStore(10)
	require.NoError(t, s.Set("k", "12345"))

	err := s.Set("k2", "123456789")
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// Overwriting the same key only counts the new value.
	require.NoError(t, s.Set("k", "123456789"))
	v, _, _ := s.Get("k")
	assert.Equal(t, "123456789", v)
	assert.Equal(t, 1, s.Len())
}

func TestFileStoreQuotaKeepsPreviousValue(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "store.json"), 16)
	require.NoError(t, s.Set("k", "small"))

	assert.ErrorIs(t, s.Set("k", "this value is far too large"), ErrQuotaExceeded)

	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "small", v)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, NewFileStore(path, 0).Set("tutaviendo_analytics", "[]"))

	v, ok, err := NewFileStore(path, 0).Get("tutaviendo_analytics")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", v)
}

func TestFileStoreCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := NewFileStore(path, 0)
	_, ok, err := s.Get("k")
	assert.Error(t, err)
	assert.False(t, ok)

	// A write replaces the corrupted content.
	require.NoError(t, s.Set("k", "v"))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
