package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/driftline/outreach-backend/internal/apperrors"
	"github.com/driftline/outreach-backend/internal/config"
)

// tokenBucketScript refills and decrements in one atomic EVAL so the bucket
// stays correct across every process sharing the Redis instance.
//
// KEYS[1] = bucket hash key
// ARGV    = capacity, refill_rate, refill_interval_ms, cost, now_ms, ttl_s
// Returns 1 when the tokens were granted, 0 otherwise.
var tokenBucketScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local now = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_refill'))
if tokens == nil then
  tokens = capacity
  last = now
end

local elapsed = now - last
if elapsed >= interval then
  local intervals = math.floor(elapsed / interval)
  tokens = math.min(capacity, tokens + intervals * rate)
  last = last + intervals * interval
end

local granted = 0
if tokens >= cost then
  tokens = tokens - cost
  granted = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_refill', last)
redis.call('EXPIRE', KEYS[1], ttl)
return granted
`)

// RedisLimiter stores token buckets in Redis, the shared store required for
// correctness once more than one worker or server process exists.
type RedisLimiter struct {
	client *redis.Client
	cfg    map[string]config.BucketConfig
	prefix string
}

func NewRedisLimiter(client *redis.Client, cfg map[string]config.BucketConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg, prefix: "ratelimit:"}
}

func (l *RedisLimiter) TryAcquire(ctx context.Context, service string, cost int) (bool, error) {
	if cost <= 0 {
		cost = 1
	}
	cfg, ok := l.cfg[service]
	if !ok {
		return false, apperrors.NewValidation("service", "no rate limit bucket configured for "+service)
	}

	// TTL long enough to outlive a full refill cycle; idle buckets expire.
	ttl := int64((time.Duration(cfg.Capacity/cfg.RefillRate+1) * cfg.RefillInterval).Seconds()) + 60

	res, err := tokenBucketScript.Run(ctx, l.client, []string{l.prefix + service},
		cfg.Capacity,
		cfg.RefillRate,
		cfg.RefillInterval.Milliseconds(),
		cost,
		time.Now().UnixMilli(),
		ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return res == 1, nil
}

var _ Limiter = (*RedisLimiter)(nil)
