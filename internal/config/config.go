package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Feed polling.
	FeedURL       string
	FeedUserAgent string
	FeedTimeout   time.Duration
	PollInterval  time.Duration
	FeedRateLimit float64 // requests per second against the feed host

	// In-cycle retry policy, shared by the fetch and write stages.
	RetryMaxAttempts int
	BackoffBase      time.Duration
	BackoffCap       time.Duration

	// Dedupe window.
	DedupeWindowSize int
	DedupeWindowTTL  time.Duration

	// Checkpoint persistence.
	CheckpointDir string

	// Kafka sink.
	KafkaBrokers         []string
	KafkaEventsTopic     string
	KafkaQuarantineTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "60s")
	if err != nil {
		return nil, err
	}
	backoffBase, err := parsePositiveDuration("BACKOFF_BASE", "200ms")
	if err != nil {
		return nil, err
	}
	backoffCap, err := parsePositiveDuration("BACKOFF_CAP", "5s")
	if err != nil {
		return nil, err
	}
	windowTTL, err := parsePositiveDuration("DEDUPE_WINDOW_TTL", "1h")
	if err != nil {
		return nil, err
	}

	rateLimit, err := parsePositiveFloat("FEED_RATE_LIMIT", "1")
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("RETRY_MAX_ATTEMPTS", "5")
	if err != nil {
		return nil, err
	}
	windowSize, err := parsePositiveInt("DEDUPE_WINDOW_SIZE", "1000")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		FeedURL:       sharedcfg.EnvOrDefault("FEED_URL", "http://www.spotternetwork.org/feeds/reports.txt"),
		FeedUserAgent: sharedcfg.EnvOrDefault("FEED_USER_AGENT", "sigtor.org"),
		FeedTimeout:   feedTimeout,
		PollInterval:  pollInterval,
		FeedRateLimit: rateLimit,

		RetryMaxAttempts: maxAttempts,
		BackoffBase:      backoffBase,
		BackoffCap:       backoffCap,

		DedupeWindowSize: windowSize,
		DedupeWindowTTL:  windowTTL,

		CheckpointDir: sharedcfg.EnvOrDefault("CHECKPOINT_DIR", "/var/lib/spotter-report-loader/checkpoint"),

		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic:     sharedcfg.EnvOrDefault("KAFKA_EVENTS_TOPIC", "storm-events"),
		KafkaQuarantineTopic: sharedcfg.EnvOrDefault("KAFKA_QUARANTINE_TOPIC", "storm-events-quarantine"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.FeedURL == "" {
		return nil, errors.New("FEED_URL is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaEventsTopic == "" {
		return nil, errors.New("KAFKA_EVENTS_TOPIC is required")
	}
	if cfg.KafkaQuarantineTopic == "" {
		return nil, errors.New("KAFKA_QUARANTINE_TOPIC is required")
	}
	if cfg.CheckpointDir == "" {
		return nil, errors.New("CHECKPOINT_DIR is required")
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		return nil, errors.New("BACKOFF_CAP must be at least BACKOFF_BASE")
	}

	return cfg, nil
}

func parsePositiveDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}

func parsePositiveInt(name, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(name, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}

func parsePositiveFloat(name, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(name, def), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return f, nil
}
