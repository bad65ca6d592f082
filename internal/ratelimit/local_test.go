package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
)

func testBuckets() map[string]config.BucketConfig {
	return map[string]config.BucketConfig{
		"sendgrid": {Capacity: 20, RefillRate: 10, RefillInterval: time.Minute},
	}
}

func TestLocalLimiterExhaustsCapacity(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	ctx := context.Background()

	granted := 0
	for i := 0; i < 21; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	assert.Equal(t, 20, granted)
}

func TestLocalLimiterRefillsWholeIntervals(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	for i := 0; i < 20; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.TryAcquire(ctx, "sendgrid", 1)
	require.NoError(t, err)
	require.False(t, ok)

	// 90s is one whole interval: exactly 10 tokens come back
	l.now = func() time.Time { return base.Add(90 * time.Second) }
	granted := 0
	for i := 0; i < 11; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	assert.Equal(t, 10, granted)
}

func TestLocalLimiterRefillCapsAtCapacity(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	ctx := context.Background()

	base := time.Now()
	l.now = func() time.Time { return base }

	ok, err := l.TryAcquire(ctx, "sendgrid", 1)
	require.NoError(t, err)
	require.True(t, ok)

	// an hour of refill cannot overshoot capacity
	l.now = func() time.Time { return base.Add(time.Hour) }
	granted := 0
	for i := 0; i < 25; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	assert.Equal(t, 20, granted)
}

func TestLocalLimiterUnknownService(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	_, err := l.TryAcquire(context.Background(), "nope", 1)
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestLocalLimiterConcurrentNeverOvergrants(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	ctx := context.Background()

	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryAcquire(ctx, "sendgrid", 1)
			if err == nil && ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(20), granted)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ok, err := l.TryAcquire(ctx, "sendgrid", 1)
		require.NoError(t, err)
		require.True(t, ok)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := Acquire(cancelCtx, l, "sendgrid", 1)
	var rl *apperrors.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, "sendgrid", rl.Service)
}

func TestAcquireSucceedsImmediatelyWithTokens(t *testing.T) {
	l := NewLocalLimiter(testBuckets())
	require.NoError(t, Acquire(context.Background(), l, "sendgrid", 1))
}
