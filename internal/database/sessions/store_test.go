package sessions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/frodejac/writeups/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := NewSessionStore(db)
	require.NoError(t, err)
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.Create(ctx, "abc", "admin", now, now.Add(time.Hour)))

	session, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "abc", session.Id)
	assert.Equal(t, "admin", session.Role)
	assert.True(t, session.ExpiresAt.Equal(now.Add(time.Hour)))

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Delete(ctx, "abc"))
	session, err = store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, session)

	// Deleting twice is fine
	require.NoError(t, store.Delete(ctx, "abc"))
}

func TestStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, "old", "admin", now.Add(-2*time.Hour), now.Add(-time.Hour)))
	require.NoError(t, store.Create(ctx, "new", "admin", now, now.Add(time.Hour)))

	n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	session, err := store.Get(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, session)
}
