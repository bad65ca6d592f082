package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsExponentially(t *testing.T) {
	// strip jitter by checking the floor of each delay
	tests := []struct {
		attempts int
		min      time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{6, 32 * time.Second},
	}
	for _, tc := range tests {
		d := Backoff(tc.attempts)
		assert.GreaterOrEqual(t, d, tc.min, "attempt %d", tc.attempts)
		assert.Less(t, d, tc.min+time.Second+time.Millisecond, "attempt %d", tc.attempts)
	}
}

func TestBackoffCapsAtFiveMinutes(t *testing.T) {
	for _, attempts := range []int{10, 20, 40} {
		d := Backoff(attempts)
		assert.GreaterOrEqual(t, d, 5*time.Minute)
		assert.Less(t, d, 5*time.Minute+time.Second+time.Millisecond)
	}
}

func TestBackoffClampsNonPositiveAttempts(t *testing.T) {
	d := Backoff(0)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.Less(t, d, 2*time.Second+time.Millisecond)
}

func TestEnqueueOptions(t *testing.T) {
	at := time.Now().Add(time.Hour)
	opts := enqueueOpts{priority: 0, maxAttempts: 3, scheduledAt: time.Now()}
	for _, apply := range []Option{
		WithPriority(9),
		WithMaxAttempts(7),
		WithScheduledAt(at),
		WithIdempotencyKey("send:1:2"),
	} {
		apply(&opts)
	}
	assert.Equal(t, 9, opts.priority)
	assert.Equal(t, 7, opts.maxAttempts)
	assert.Equal(t, at, opts.scheduledAt)
	if assert.NotNil(t, opts.idempotencyKey) {
		assert.Equal(t, "send:1:2", *opts.idempotencyKey)
	}
}
