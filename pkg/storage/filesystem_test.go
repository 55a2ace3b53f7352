package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveReadDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save("nested/token.json", []byte(`{"a":1}`), 0o600)
	require.NoError(t, err)
	assert.Equal(t, store.Path("nested/token.json"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := store.Read("nested/token.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	_, err = store.Save("nested/token.json", []byte(`{"a":2}`), 0o600)
	require.NoError(t, err)
	data, err = store.Read("nested/token.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete("nested/token.json"))
	require.NoError(t, store.Delete("nested/token.json"))
	_, err = store.Read("nested/token.json")
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalStorageAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	abs := filepath.Join(dir, "plan.json")
	path, err := store.Save(abs, []byte("{}"), 0o644)
	require.NoError(t, err)
	assert.Equal(t, abs, path)
}
