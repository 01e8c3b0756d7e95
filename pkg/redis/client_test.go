package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return FromRedis(raw), mr
}

func TestSetNXOnlyFirstWriterWins(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	ok, err := client.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestGetMissingReturnsNil(t *testing.T) {
	client, _ := setupTestRedis(t)
	_, err := client.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, redis.Nil))
}

func TestSetExpiresWithTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", "v", time.Second))
	mr.FastForward(2 * time.Second)

	_, err := client.Get(ctx, "k")
	assert.True(t, errors.Is(err, redis.Nil))
}

func TestDelAndPing(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Del(ctx, "a"))
	assert.False(t, mr.Exists("a"))
	require.NoError(t, client.Ping(ctx))
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), ErrNotInitialized)
	_, err := client.SetNX(ctx, "k", "v", 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = client.DeleteIfValue(ctx, "k", "v")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "storefront:idem:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "storefront:idem:scope", client.IdempotencyKey("scope", ""))
	assert.Equal(t, "storefront:lock:cron", client.LockKey("cron"))

	mr := miniredis.RunT(t)
	custom := FromRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), WithNamespace("shop-staging"))
	assert.Equal(t, "shop-staging:lock:cron", custom.LockKey("cron"))
	assert.Equal(t, "shop-staging", custom.Namespace())
}

func TestDeleteIfValueOnlyRemovesOwnedKey(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "lock", "owner-a", time.Minute))

	deleted, err := client.DeleteIfValue(ctx, "lock", "owner-b")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, mr.Exists("lock"))

	deleted, err = client.DeleteIfValue(ctx, "lock", "owner-a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, mr.Exists("lock"))

	deleted, err = client.DeleteIfValue(ctx, "lock", "owner-a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestExpireIfValueExtendsOwnedKey(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "lock", "owner-a", time.Minute))

	extended, err := client.ExpireIfValue(ctx, "lock", "owner-b", time.Hour)
	require.NoError(t, err)
	assert.False(t, extended)
	assert.Equal(t, time.Minute, mr.TTL("lock"))

	extended, err = client.ExpireIfValue(ctx, "lock", "owner-a", time.Hour)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, time.Hour, mr.TTL("lock"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/3", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}

func TestNewConnectsToServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: mr.Addr(), KeyPrefix: "sf-test"}, nil)
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()))
	assert.Equal(t, "sf-test:idem:orders:k1", client.IdempotencyKey("orders", "k1"))
}

func TestNewFailsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), config.RedisConfig{Address: addr, DialTimeout: 200 * time.Millisecond}, nil)
	assert.Error(t, err)
}
