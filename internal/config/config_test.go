package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://www.spotternetwork.org/feeds/reports.txt", cfg.FeedURL)
	assert.Equal(t, "sigtor.org", cfg.FeedUserAgent)
	assert.Equal(t, 10*time.Second, cfg.FeedTimeout)
	assert.Equal(t, 60*time.Second, cfg.PollInterval)
	assert.Equal(t, 1.0, cfg.FeedRateLimit)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 5*time.Second, cfg.BackoffCap)
	assert.Equal(t, 1000, cfg.DedupeWindowSize)
	assert.Equal(t, time.Hour, cfg.DedupeWindowTTL)
	assert.Equal(t, "/var/lib/spotter-report-loader/checkpoint", cfg.CheckpointDir)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "storm-events", cfg.KafkaEventsTopic)
	assert.Equal(t, "storm-events-quarantine", cfg.KafkaQuarantineTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("FEED_URL", "http://feed.example.com/reports.txt")
	t.Setenv("FEED_USER_AGENT", "custom-agent")
	t.Setenv("FEED_TIMEOUT", "3s")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("FEED_RATE_LIMIT", "0.5")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("BACKOFF_BASE", "100ms")
	t.Setenv("BACKOFF_CAP", "2s")
	t.Setenv("DEDUPE_WINDOW_SIZE", "500")
	t.Setenv("DEDUPE_WINDOW_TTL", "30m")
	t.Setenv("CHECKPOINT_DIR", "/tmp/checkpoint")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_EVENTS_TOPIC", "custom-events")
	t.Setenv("KAFKA_QUARANTINE_TOPIC", "custom-quarantine")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://feed.example.com/reports.txt", cfg.FeedURL)
	assert.Equal(t, "custom-agent", cfg.FeedUserAgent)
	assert.Equal(t, 3*time.Second, cfg.FeedTimeout)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.Equal(t, 0.5, cfg.FeedRateLimit)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 2*time.Second, cfg.BackoffCap)
	assert.Equal(t, 500, cfg.DedupeWindowSize)
	assert.Equal(t, 30*time.Minute, cfg.DedupeWindowTTL)
	assert.Equal(t, "/tmp/checkpoint", cfg.CheckpointDir)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-events", cfg.KafkaEventsTopic)
	assert.Equal(t, "custom-quarantine", cfg.KafkaQuarantineTopic)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	t.Setenv("POLL_INTERVAL", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	t.Setenv("FEED_RATE_LIMIT", "-1")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FEED_RATE_LIMIT")
}

func TestLoad_InvalidRetryMaxAttempts(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "zero")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
}

func TestLoad_InvalidDedupeWindowSize(t *testing.T) {
	t.Setenv("DEDUPE_WINDOW_SIZE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEDUPE_WINDOW_SIZE")
}

func TestLoad_CapBelowBase(t *testing.T) {
	t.Setenv("BACKOFF_BASE", "1s")
	t.Setenv("BACKOFF_CAP", "100ms")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKOFF_CAP")
}
