package tokenstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	m := NewMemory()

	_, ok := m.Get(TokenKey)
	assert.False(t, ok)

	require.NoError(t, m.Set(TokenKey, "abc"))
	require.NoError(t, m.Set(RefreshKey, "def"))

	v, ok := m.Get(TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	require.NoError(t, m.Delete(TokenKey, RefreshKey))
	_, ok = m.Get(TokenKey)
	assert.False(t, ok)
	_, ok = m.Get(RefreshKey)
	assert.False(t, ok)
}

func TestMemory_EmptyValueIsAbsent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Set(TokenKey, ""))

	_, ok := m.Get(TokenKey)
	assert.False(t, ok)
}

func TestFile_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	f, err := OpenFile(path, nil)
	require.NoError(t, err)
	require.NoError(t, f.Set(TokenKey, "access"))
	require.NoError(t, f.Set(RefreshKey, "refresh"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := OpenFile(path, nil)
	require.NoError(t, err)

	v, ok := reopened.Get(TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "access", v)

	require.NoError(t, reopened.Delete(TokenKey, RefreshKey))

	again, err := OpenFile(path, nil)
	require.NoError(t, err)
	_, ok = again.Get(RefreshKey)
	assert.False(t, ok)
}

func TestFile_Encrypted(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrCreateIdentity(filepath.Join(dir, "session.key"))
	require.NoError(t, err)

	path := filepath.Join(dir, "session.age")
	f, err := OpenFile(path, id)
	require.NoError(t, err)
	require.NoError(t, f.Set(TokenKey, "secret-access-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-access-token")

	sameId, err := LoadOrCreateIdentity(filepath.Join(dir, "session.key"))
	require.NoError(t, err)
	assert.Equal(t, id.String(), sameId.String())

	reopened, err := OpenFile(path, sameId)
	require.NoError(t, err)
	v, ok := reopened.Get(TokenKey)
	assert.True(t, ok)
	assert.Equal(t, "secret-access-token", v)

	_, err = OpenFile(path, nil)
	assert.Error(t, err, "encrypted file should not parse as plain JSON")
}

func TestFile_MissingFileIsEmpty(t *testing.T) {
	f, err := OpenFile(filepath.Join(t.TempDir(), "nope", "session.json"), nil)
	require.NoError(t, err)

	_, ok := f.Get(TokenKey)
	assert.False(t, ok)
}
