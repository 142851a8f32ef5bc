package jobcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))
	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)

	require.NoError(t, store.Delete(ctx, "k"))
	_, found, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// deleting an absent key is not an error
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	require.NoError(t, store.Set(ctx, "k", "v", 20*time.Millisecond))
	_, found, _ := store.Get(ctx, "k")
	assert.True(t, found)

	time.Sleep(60 * time.Millisecond)

	_, found, _ = store.Get(ctx, "k")
	assert.False(t, found)
}

func TestMemoryStore_Update(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)

	err := store.Update(ctx, "k", time.Minute, func(current string, found bool) (string, error) {
		assert.False(t, found)
		assert.Empty(t, current)
		return "first", nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, "k", time.Minute, func(current string, found bool) (string, error) {
		assert.True(t, found)
		return current + "+second", nil
	})
	require.NoError(t, err)

	value, _, _ := store.Get(ctx, "k")
	assert.Equal(t, "first+second", value)

	ttl, ok := store.TTL("k")
	require.True(t, ok)
	assert.InDelta(t, time.Minute.Seconds(), ttl.Seconds(), 1)

	boom := errors.New("boom")
	err = store.Update(ctx, "k", time.Minute, func(string, bool) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)

	value, _, _ = store.Get(ctx, "k")
	assert.Equal(t, "first+second", value)
}
