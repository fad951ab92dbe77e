package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSecureStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secure.json")
	s, err := NewFileSecureStore(path)
	require.NoError(t, err)

	// Absent key reads as empty, not an error.
	v, err := s.Get("access_token")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set("access_token", "tok"))
	v, err = s.Get("access_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	require.NoError(t, s.Delete("access_token"))
	v, err = s.Get("access_token")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestFileSecureStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secure.json")
	s, err := NewFileSecureStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("refresh_token", "ref"))

	reopened, err := NewFileSecureStore(path)
	require.NoError(t, err)
	v, err := reopened.Get("refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "ref", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSecureStoreCorruptFileStartsFresh(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "secure.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileSecureStore(path)
	require.NoError(t, err)
	v, err := s.Get("anything")
	require.NoError(t, err)
	assert.Empty(t, v)
}
