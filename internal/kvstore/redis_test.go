package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis starts miniredis and returns a RedisStore pointed at it
func setupTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	store := NewRedisStoreFromClient(client, ttl)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

func TestRedisStoreGetMiss(t *testing.T) {
	store, _ := setupTestRedis(t, 0)

	_, ok, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreSetGetDelete(t *testing.T) {
	store, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyCart, []byte(`[{"id":"A"}]`)))

	got, err := mr.Get(KeyCart)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"A"}]`, got)

	raw, ok, err := store.Get(ctx, KeyCart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"A"}]`, string(raw))

	require.NoError(t, store.Delete(ctx, KeyCart))
	assert.False(t, mr.Exists(KeyCart))
}

func TestRedisStoreAppliesTTL(t *testing.T) {
	store, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, KeyLastOrder, []byte(`{}`)))
	assert.Equal(t, time.Hour, mr.TTL(KeyLastOrder))

	mr.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, KeyLastOrder)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreUnavailableIsRecoveredByGetJSON(t *testing.T) {
	store, mr := setupTestRedis(t, 0)
	mr.Close()

	var items []string
	assert.False(t, GetJSON(context.Background(), store, KeyCart, &items))
	assert.Error(t, SetJSON(context.Background(), store, KeyCart, items))
}
