package files

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiskStore(t *testing.T) (*DiskStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewDiskStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestDiskStore_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestDiskStore(t)

	n, err := store.Put(ctx, "a.pdf", strings.NewReader("%PDF-1.4\n"), 9)
	require.NoError(t, err)
	assert.EqualValues(t, 9, n)

	obj, err := store.Open(ctx, "a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Equal(t, "%PDF-1.4\n", string(data))
	assert.EqualValues(t, 9, obj.Size)
	assert.Equal(t, "a.pdf", obj.Name)

	require.NoError(t, store.Delete(ctx, "a.pdf"))
	_, err = os.Stat(filepath.Join(dir, "a.pdf"))
	assert.True(t, os.IsNotExist(err))

	// Idempotent
	require.NoError(t, store.Delete(ctx, "a.pdf"))
}

func TestDiskStore_PutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDiskStore(t)

	_, err := store.Put(ctx, "a.pdf", strings.NewReader("one"), 3)
	require.NoError(t, err)
	_, err = store.Put(ctx, "a.pdf", strings.NewReader("two"), 3)
	assert.ErrorIs(t, err, ErrExists)

	obj, err := store.Open(ctx, "a.pdf")
	require.NoError(t, err)
	defer obj.Close()
	data, _ := io.ReadAll(obj)
	assert.Equal(t, "one", string(data))
}

func TestDiskStore_PutShortRead(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestDiskStore(t)

	_, err := store.Put(ctx, "a.pdf", strings.NewReader("abc"), 10)
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "a.pdf"))
	assert.True(t, os.IsNotExist(statErr), "partial file must be removed")
}

func TestDiskStore_InvalidNames(t *testing.T) {
	ctx := context.Background()
	store, dir := newTestDiskStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(dir), "secret.pdf"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	_, err := store.Open(ctx, "../secret.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, "missing.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, "sub")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Put(ctx, "../escape.pdf", strings.NewReader("x"), 1)
	assert.Error(t, err)
	assert.Error(t, store.Delete(ctx, "../secret.pdf"))
}
