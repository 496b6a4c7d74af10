package objectstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalObjectStore {
	t.Helper()
	store, err := NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalObjectStore_PutAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newLocalStore(t)

	content := []byte("hello, world!")
	etag, err := store.Put(ctx, "uploads/tenant/doc/file.txt", bytes.NewReader(content), PutOptions{ContentType: "text/plain"})
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	reader, attrs, err := store.Get(ctx, "uploads/tenant/doc/file.txt")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, int64(len(content)), attrs.Size)
}

func TestLocalObjectStore_GetNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newLocalStore(t)

	_, _, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalObjectStore_RejectsPathTraversal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newLocalStore(t)

	_, err := store.Put(ctx, "../../etc/passwd", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, _, err = store.Get(ctx, "../outside")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalObjectStore_Exists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newLocalStore(t)

	exists, err := store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Put(ctx, "present", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	exists, err = store.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLocalObjectStore_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newLocalStore(t)

	_, err := store.Put(ctx, "to-delete", bytes.NewReader([]byte("data")), PutOptions{})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "to-delete"))

	_, _, err = store.Get(ctx, "to-delete")
	assert.ErrorIs(t, err, ErrNotFound)
}
