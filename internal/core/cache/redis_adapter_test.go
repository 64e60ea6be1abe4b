package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *RedisAdapter {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := NewRedisAdapter("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter
}

func TestRedisAdapter_GetSet(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	key := "test_key"
	value := []byte("test_value")

	err := adapter.Set(ctx, key, value, 10*time.Second)
	assert.NoError(t, err)

	retrieved, err := adapter.Get(ctx, key)
	assert.NoError(t, err)
	assert.Equal(t, value, retrieved)
}

func TestRedisAdapter_GetNotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.Get(context.Background(), "non_existent_key")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisAdapter_Delete(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	key := "delete_test"
	require.NoError(t, adapter.Set(ctx, key, []byte("value"), 0))

	assert.NoError(t, adapter.Delete(ctx, key))

	_, err := adapter.Get(ctx, key)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisAdapter_Ping(t *testing.T) {
	adapter := newTestAdapter(t)

	assert.NoError(t, adapter.Ping(context.Background()))
}

func TestRedisAdapter_InvalidURL(t *testing.T) {
	_, err := NewRedisAdapter("not-a-redis-url")
	assert.Error(t, err)
}
