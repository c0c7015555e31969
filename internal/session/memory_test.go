package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, err := store.Create(ctx, "user-1", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "user-1", sess.UserID)

	got, err := store.Find(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sess, got)
	assert.Equal(t, "user-1", got.Data().UserID)

	require.NoError(t, store.Delete(ctx, sess.SessionID))
	_, err = store.Find(ctx, sess.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, store.Delete(ctx, sess.SessionID))
}

func TestMemoryStore_SessionIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.Create(ctx, "user-1", time.Hour)
	b, _ := store.Create(ctx, "user-1", time.Hour)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	short, _ := store.Create(ctx, "user-1", time.Minute)
	long, _ := store.Create(ctx, "user-2", time.Hour)

	now = now.Add(10 * time.Minute)
	got, err := store.Find(ctx, short.SessionID)
	require.NoError(t, err)
	assert.True(t, got.Expired(now))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.Find(ctx, short.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Find(ctx, long.SessionID)
	assert.NoError(t, err)
}
