package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/spotter-report-loader/internal/config"
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
)

// Kind classifies a sink write failure.
type Kind string

const (
	// KindTransient covers broker unavailability and network errors; the
	// caller retries the batch. Re-sent messages keep their event-ID keys, so
	// downstream consumers deduplicate replays.
	KindTransient Kind = "transient"
	// KindConflict means the broker saw the write as stale or superseded.
	KindConflict Kind = "conflict"
	// KindFatal covers misconfiguration such as a missing topic or failed
	// authentication. Retrying cannot help.
	KindFatal Kind = "fatal"
)

// WriteError is a classified sink failure.
type WriteError struct {
	Kind Kind
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("sink write %s: %v", e.Kind, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// Retryable reports whether re-sending the same batch could succeed.
func (e *WriteError) Retryable() bool { return e.Kind == KindTransient }

// Fatal reports whether the failure should stop the process.
func (e *WriteError) Fatal() bool { return e.Kind == KindFatal }

// Writer produces canonical events to the events Kafka topic.
// It implements pipeline.SinkWriter.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
// Messages are keyed by event ID and hashed to partitions, so replays of the
// same event land on the same partition in order.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// WriteBatch serializes and publishes a batch of canonical events in a single
// WriteMessages call. The returned error, if any, is a *WriteError.
func (w *Writer) WriteBatch(ctx context.Context, events []domain.CanonicalEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		msg, err := serializeToMessage(events[i])
		if err != nil {
			return &WriteError{Kind: KindFatal, Err: err}
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return classifyWriteError(err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a CanonicalEvent into a Kafka message keyed by
// its deterministic event ID.
func serializeToMessage(event domain.CanonicalEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize canonical event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "source", Value: []byte(event.Source)},
			{Key: "ingested_at", Value: []byte(event.IngestedAt.Format(time.RFC3339))},
		},
	}, nil
}

// classifyWriteError maps a kafka-go error to the write failure taxonomy.
func classifyWriteError(err error) *WriteError {
	if err == nil {
		return nil
	}

	var werrs kafkago.WriteErrors
	if errors.As(err, &werrs) {
		for _, we := range werrs {
			if we == nil {
				continue
			}
			return classifyWriteError(we)
		}
		return &WriteError{Kind: KindTransient, Err: err}
	}

	var kerr kafkago.Error
	if errors.As(err, &kerr) {
		switch {
		case kerr == kafkago.InvalidProducerEpoch || kerr == kafkago.DuplicateSequenceNumber:
			return &WriteError{Kind: KindConflict, Err: err}
		case kerr.Temporary():
			return &WriteError{Kind: KindTransient, Err: err}
		default:
			return &WriteError{Kind: KindFatal, Err: err}
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) || errors.Is(err, context.DeadlineExceeded) {
		return &WriteError{Kind: KindTransient, Err: err}
	}
	return &WriteError{Kind: KindTransient, Err: err}
}
