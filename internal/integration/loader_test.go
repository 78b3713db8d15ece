//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkaadapter "github.com/couchcryptid/spotter-report-loader/internal/adapter/kafka"
	"github.com/couchcryptid/spotter-report-loader/internal/backoff"
	"github.com/couchcryptid/spotter-report-loader/internal/checkpoint"
	"github.com/couchcryptid/spotter-report-loader/internal/config"
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
	"github.com/couchcryptid/spotter-report-loader/internal/fetcher"
	"github.com/couchcryptid/spotter-report-loader/internal/observability"
	"github.com/couchcryptid/spotter-report-loader/internal/pipeline"
)

const (
	testEventsTopic     = "test-storm-events"
	testQuarantineTopic = "test-storm-events-quarantine"
)

const testFeed = `Refresh: 5
Icon: 47.617706,-111.215248,000,4,4,"Reported By: Test Human\nHail\nTime: 2018-09-20 22:49:29 UTC\nSize: 0.75" (Penny)\nNotes: None"
Icon: 43.112000,-94.639999,000,3,5,"Reported By: Test Human\nHigh Wind\nTime: 2018-09-20 22:52:00 UTC\n60 mph [Measured]\nNotes: Strong winds measured at 60mph with anemometer"
Icon: garbage line that does not parse
`

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func readEvent(ctx context.Context, t *testing.T, consumer *kafkago.Reader) (domain.CanonicalEvent, kafkago.Message) {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from events topic")

	var event domain.CanonicalEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event), "unmarshal event")
	return event, msg
}

// TestSinkRoundTrip verifies the adapter layer: events written through
// kafka.Writer come back with the expected key, headers, and payload.
func TestSinkRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventsTopic)

	cfg := &config.Config{
		KafkaBrokers:     []string{broker},
		KafkaEventsTopic: testEventsTopic,
	}

	severity := "moderate"
	event := domain.CanonicalEvent{
		ID:         "snr-roundtrip",
		Source:     domain.SourceTag,
		EventType:  domain.EventWind,
		EventTime:  time.Date(2018, 9, 20, 22, 52, 0, 0, time.UTC),
		Geo:        domain.Geo{Lat: 43.112, Lon: -94.64},
		Magnitude:  60,
		Unit:       "mph",
		Measured:   true,
		Severity:   &severity,
		Reporter:   "Test Human",
		Title:      "Report: High Wind",
		IngestedAt: time.Now().UTC().Truncate(time.Second),
	}

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.WriteBatch(ctx, []domain.CanonicalEvent{event}))

	got, msg := readEvent(ctx, t, newConsumer(t, broker, testEventsTopic))

	assert.Equal(t, "snr-roundtrip", string(msg.Key))
	headers := headerMap(msg)
	assert.Equal(t, "wind", headers["event_type"])
	assert.Equal(t, domain.SourceTag, headers["source"])
	_, err := time.Parse(time.RFC3339, headers["ingested_at"])
	assert.NoError(t, err, "ingested_at should be valid RFC3339")

	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.EventType, got.EventType)
	require.NotNil(t, got.Severity)
	assert.Equal(t, "moderate", *got.Severity)
}

// TestQuarantineRoundTrip verifies quarantine records survive the trip with
// their reason header intact.
func TestQuarantineRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testQuarantineTopic)

	cfg := &config.Config{
		KafkaBrokers:         []string{broker},
		KafkaQuarantineTopic: testQuarantineTopic,
	}

	rec := domain.QuarantineRecord{
		ReportID:   "bad-report",
		Reason:     domain.ReasonUnknownType,
		Detail:     "hazard code 42",
		RawLine:    "Icon: ...",
		ObservedAt: time.Now().UTC().Truncate(time.Second),
	}

	writer := kafkaadapter.NewQuarantineWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.WriteQuarantine(ctx, []domain.QuarantineRecord{rec}))

	consumer := newConsumer(t, broker, testQuarantineTopic)
	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, "bad-report", string(msg.Key))
	assert.Equal(t, "unknown_type", headerMap(msg)["reason"])

	var got domain.QuarantineRecord
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, rec.Reason, got.Reason)
	assert.Equal(t, rec.Detail, got.Detail)
}

// TestLoaderEndToEnd wires the full loop (feed → fetcher → checkpoint →
// normalizer → Kafka) against a stub feed and real Kafka, and verifies events
// land exactly once while the garbage line is quarantined.
func TestLoaderEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testEventsTopic)
	createTopic(t, broker, testQuarantineTopic)

	feedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, testFeed)
	}))
	t.Cleanup(feedSrv.Close)

	cfg := &config.Config{
		FeedURL:              feedSrv.URL,
		FeedUserAgent:        "test-agent",
		FeedTimeout:          5 * time.Second,
		FeedRateLimit:        1000,
		RetryMaxAttempts:     3,
		BackoffBase:          10 * time.Millisecond,
		BackoffCap:           100 * time.Millisecond,
		DedupeWindowTTL:      time.Hour,
		KafkaBrokers:         []string{broker},
		KafkaEventsTopic:     testEventsTopic,
		KafkaQuarantineTopic: testQuarantineTopic,
	}

	store, err := checkpoint.Open(t.TempDir(), 100, cfg.DedupeWindowTTL, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	quarantine := kafkaadapter.NewQuarantineWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = quarantine.Close() })

	p := pipeline.New(
		fetcher.New(cfg, discardLogger()),
		store,
		pipeline.NewReportNormalizer(),
		writer,
		quarantine,
		discardLogger(),
		observability.NewMetricsForTesting(),
		pipeline.Options{
			PollInterval: 250 * time.Millisecond,
			MaxAttempts:  3,
			Backoff:      backoff.Policy{Base: 10 * time.Millisecond, Cap: 100 * time.Millisecond},
		},
	)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newConsumer(t, broker, testEventsTopic)

	// Two parseable reports: hail then wind.
	byType := map[domain.EventType]domain.CanonicalEvent{}
	for i := 0; i < 2; i++ {
		event, msg := readEvent(ctx, t, consumer)
		assert.Equal(t, event.ID, string(msg.Key))
		byType[event.EventType] = event
	}

	hail, ok := byType[domain.EventHail]
	require.True(t, ok, "expected a hail event")
	assert.Equal(t, 0.75, hail.Magnitude)
	assert.Equal(t, "in", hail.Unit)
	assert.Equal(t, "Report: Hail", hail.Title)

	wind, ok := byType[domain.EventWind]
	require.True(t, ok, "expected a wind event")
	assert.True(t, wind.Measured)
	require.NotNil(t, wind.Severity)
	assert.Equal(t, "moderate", *wind.Severity)
	assert.Equal(t, time.Date(2018, 9, 20, 22, 52, 0, 0, time.UTC), wind.EventTime.UTC())

	// The garbage line lands in quarantine.
	qconsumer := newConsumer(t, broker, testQuarantineTopic)
	qctx, qcancel := context.WithTimeout(ctx, 30*time.Second)
	qmsg, err := qconsumer.ReadMessage(qctx)
	qcancel()
	require.NoError(t, err)
	assert.Equal(t, "malformed", headerMap(qmsg)["reason"])

	// Give the loop time to poll the unchanged feed a few more times, then
	// verify nothing was duplicated.
	time.Sleep(time.Second)
	pipelineCancel()
	require.NoError(t, <-errCh)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no duplicate events on the topic")

	// The checkpoint advanced to the newest report time.
	cur, err := store.Load()
	require.NoError(t, err)
	assert.True(t, cur.Cursor.Equal(time.Date(2018, 9, 20, 22, 52, 0, 0, time.UTC)))
}
