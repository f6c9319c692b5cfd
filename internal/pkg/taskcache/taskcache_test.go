package taskcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(client, ttl), mr
}

func TestCache_PutGet(t *testing.T) {
	cache, _ := setupCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "task_1", map[string]string{"url": "https://cdn.example/a.mp3"}))

	data, ok, err := cache.Get(ctx, "task_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"url":"https://cdn.example/a.mp3"}`, string(data))
}

func TestCache_GetMiss(t *testing.T) {
	cache, _ := setupCache(t, time.Hour)

	data, ok, err := cache.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache, mr := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "task_1", "result"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "task_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_Owner(t *testing.T) {
	cache, _ := setupCache(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.PutOwner(ctx, "task_1", "user_42"))

	userID, ok, err := cache.GetOwner(ctx, "task_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "user_42", userID)

	_, ok, err = cache.GetOwner(ctx, "task_other")
	require.NoError(t, err)
	assert.False(t, ok)
}
