package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveAndLoad(t *testing.T) {
	store, err := newFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "prices", []byte(`{"k":"v"}`)))

	data, err := store.Load(ctx, "prices")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"k":"v"}`), data)
}

func TestFileStore_Load_Absent(t *testing.T) {
	store, err := newFileStore(t.TempDir())
	require.NoError(t, err)

	data, err := store.Load(context.Background(), "never_saved")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFileStore_Save_Overwrites(t *testing.T) {
	store, err := newFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "prices", []byte("old")))
	require.NoError(t, store.Save(ctx, "prices", []byte("new")))

	data, err := store.Load(ctx, "prices")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestFileStore_Save_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := newFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "prices", []byte("x")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "prices.json", entries[0].Name())
	assert.Equal(t, filepath.Join(dir, "prices.json"), store.path("prices"))
}

func TestNewFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")

	_, err := NewFileStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
