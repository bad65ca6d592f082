package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBucketsFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := `
sendgrid:
  capacity: 200
  refill_rate: 100
  refill_interval: 10s
unipile:
  capacity: 5
  refill_rate: 1
  refill_interval: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	buckets, err := LoadBuckets(path)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, BucketConfig{Capacity: 200, RefillRate: 100, RefillInterval: 10 * time.Second}, buckets["sendgrid"])
	assert.Equal(t, BucketConfig{Capacity: 5, RefillRate: 1, RefillInterval: time.Minute}, buckets["unipile"])
}

func TestLoadBucketsEmptyPathUsesDefaults(t *testing.T) {
	buckets, err := LoadBuckets("")
	require.NoError(t, err)
	for _, vendor := range []string{"sendgrid", "mailgun", "unipile", "phantombuster", "heygen", "synthesia"} {
		b, ok := buckets[vendor]
		require.True(t, ok, vendor)
		assert.Positive(t, b.Capacity)
		assert.Positive(t, b.RefillRate)
		assert.Positive(t, b.RefillInterval)
	}
}

func TestLoadBucketsRejectsNonPositiveValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := "sendgrid:\n  capacity: 0\n  refill_rate: 10\n  refill_interval: 10s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadBuckets(path)
	require.Error(t, err)
}

func TestLoadBucketsMissingFile(t *testing.T) {
	_, err := LoadBuckets(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("WORKER_COUNT", "12")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("EMAIL_PROVIDER", "mailgun")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 12, cfg.WorkerCount)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, "mailgun", cfg.Email.Name)
}
