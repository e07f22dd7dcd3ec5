package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(RedisConfig{URL: "redis://:secret@localhost:6380/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(RedisConfig{Address: "cache:6379", DB: 1, ReadTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestRedisBuildKey(t *testing.T) {
	r := &Redis{}
	assert.Equal(t, "fp:riders:S1", r.buildKey(" riders:S1 "))
}

func TestRedis_UnreachableServerDegradesToMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisWithClient(client, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "riders:S1", []byte("x"), time.Minute)
	_, ok := c.Get(ctx, "riders:S1")
	assert.False(t, ok)
	assert.Empty(t, c.Keys(ctx))
	assert.Error(t, c.Ping(ctx))
}

// Runs against a live server when FLEETPAY_TEST_REDIS_URL is set.
func TestRedis_Live(t *testing.T) {
	url := os.Getenv("FLEETPAY_TEST_REDIS_URL")
	if url == "" {
		t.Skip("FLEETPAY_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	c, err := NewRedis(ctx, RedisConfig{URL: url}, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	c.Clear(ctx)

	c.Set(ctx, "riders:S1", []byte("x"), time.Minute)
	c.Set(ctx, "debts:S1", []byte("y"), time.Minute)

	got, ok := c.Get(ctx, "riders:S1")
	require.True(t, ok)
	assert.Equal(t, "x", string(got))
	assert.Equal(t, []string{"debts:S1", "riders:S1"}, c.Keys(ctx))

	c.Delete(ctx, "riders:S1")
	_, ok = c.Get(ctx, "riders:S1")
	assert.False(t, ok)

	c.Clear(ctx)
	assert.Empty(t, c.Keys(ctx))
}
