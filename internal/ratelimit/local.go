package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
)

// LocalLimiter keeps bucket state in process memory. Only correct while a
// single process performs provider calls; multi-process deployments must use
// the Redis limiter.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	cfg     map[string]config.BucketConfig
	now     func() time.Time
}

type localBucket struct {
	tokens     int
	lastRefill time.Time
}

func NewLocalLimiter(cfg map[string]config.BucketConfig) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (l *LocalLimiter) TryAcquire(_ context.Context, service string, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, ok := l.cfg[service]
	if !ok {
		return false, apperrors.NewValidation("service", "no rate limit bucket configured for "+service)
	}

	b, ok := l.buckets[service]
	now := l.now()
	if !ok {
		b = &localBucket{tokens: cfg.Capacity, lastRefill: now}
		l.buckets[service] = b
	}

	// Lazy refill: credit whole elapsed intervals, never above capacity.
	if elapsed := now.Sub(b.lastRefill); elapsed >= cfg.RefillInterval {
		intervals := int(elapsed / cfg.RefillInterval)
		b.tokens += intervals * cfg.RefillRate
		if b.tokens > cfg.Capacity {
			b.tokens = cfg.Capacity
		}
		b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * cfg.RefillInterval)
	}

	if b.tokens < cost {
		return false, nil
	}
	b.tokens -= cost
	return true, nil
}

var _ Limiter = (*LocalLimiter)(nil)
