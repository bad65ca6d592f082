package ratelimit

import (
	"context"
	"math/rand"
	"time"

	"github.com/driftline/outreach-backend/internal/apperrors"
)

// Limiter admits requests against per-service token buckets. TryAcquire must
// be atomic relative to concurrent callers: the check and the decrement are
// one operation, never two.
type Limiter interface {
	TryAcquire(ctx context.Context, service string, cost int) (bool, error)
}

const (
	acquireBaseDelay = 200 * time.Millisecond
	acquireMaxDelay  = 5 * time.Second
)

// Acquire blocks with capped jittered backoff until cost tokens are granted
// or ctx is done. Provider sends use this so rate pressure delays rather than
// drops outbound work.
func Acquire(ctx context.Context, l Limiter, service string, cost int) error {
	delay := acquireBaseDelay
	for {
		ok, err := l.TryAcquire(ctx, service, cost)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		jittered := delay + time.Duration(rand.Int63n(int64(delay/2)+1))
		select {
		case <-ctx.Done():
			return apperrors.NewRateLimited(service)
		case <-time.After(jittered):
		}
		if delay < acquireMaxDelay {
			delay *= 2
		}
	}
}
