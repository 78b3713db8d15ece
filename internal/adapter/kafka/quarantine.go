package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/spotter-report-loader/internal/config"
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
)

// QuarantineWriter produces rejected-report records to the quarantine topic.
// It implements pipeline.QuarantineSink.
type QuarantineWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewQuarantineWriter creates a Kafka producer for the configured quarantine
// topic.
func NewQuarantineWriter(cfg *config.Config, logger *slog.Logger) *QuarantineWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaQuarantineTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &QuarantineWriter{writer: w, logger: logger}
}

// WriteQuarantine publishes the batch's rejected reports. Quarantine delivery
// is best effort relative to the main flow; callers log failures instead of
// failing the cycle.
func (w *QuarantineWriter) WriteQuarantine(ctx context.Context, records []domain.QuarantineRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeQuarantine(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *QuarantineWriter) Close() error {
	return w.writer.Close()
}

// serializeQuarantine marshals a QuarantineRecord into a Kafka message keyed
// by the offending report's ID.
func serializeQuarantine(rec domain.QuarantineRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize quarantine record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ReportID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(rec.Reason)},
			{Key: "observed_at", Value: []byte(rec.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
