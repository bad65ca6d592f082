package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
)

// newTestRedisLimiter needs a reachable Redis at TEST_REDIS_ADDR; without it
// the test is skipped. Each call gets its own key prefix so parallel runs do
// not share buckets.
func newTestRedisLimiter(t *testing.T, cfg map[string]config.BucketConfig) *RedisLimiter {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	l := NewRedisLimiter(client, cfg)
	l.prefix = fmt.Sprintf("ratelimit-test:%d:", time.Now().UnixNano())
	return l
}

func TestRedisLimiterExhaustsCapacity(t *testing.T) {
	l := newTestRedisLimiter(t, map[string]config.BucketConfig{
		"sendgrid": {Capacity: 3, RefillRate: 1, RefillInterval: time.Hour},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		assert.True(t, ok, "token %d should be granted", i+1)
	}
	ok, err := l.TryAcquire(ctx, "sendgrid", 1)
	require.NoError(t, err)
	assert.False(t, ok, "bucket must be empty after capacity tokens")
}

func TestRedisLimiterRefills(t *testing.T) {
	l := newTestRedisLimiter(t, map[string]config.BucketConfig{
		"sendgrid": {Capacity: 2, RefillRate: 2, RefillInterval: 100 * time.Millisecond},
	})
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "sendgrid", 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.TryAcquire(ctx, "sendgrid", 1)
	require.NoError(t, err)
	require.False(t, ok)

	time.Sleep(150 * time.Millisecond)

	ok, err = l.TryAcquire(ctx, "sendgrid", 2)
	require.NoError(t, err)
	assert.True(t, ok, "a full refill interval must restore refill_rate tokens")
}

func TestRedisLimiterIsSharedAcrossClients(t *testing.T) {
	cfg := map[string]config.BucketConfig{
		"heygen": {Capacity: 1, RefillRate: 1, RefillInterval: time.Hour},
	}
	a := newTestRedisLimiter(t, cfg)
	b := NewRedisLimiter(a.client, cfg)
	b.prefix = a.prefix
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "heygen", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// the second client sees the first client's spend
	ok, err = b.TryAcquire(ctx, "heygen", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiterUnknownService(t *testing.T) {
	l := newTestRedisLimiter(t, map[string]config.BucketConfig{})

	_, err := l.TryAcquire(context.Background(), "unknown", 1)
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}
