package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/weather-rollup-etl/internal/config"
	"github.com/couchcryptid/weather-rollup-etl/internal/dedup"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

// messageWriter is the subset of *kafkago.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaWriter publishes records as JSON messages keyed by their natural key,
// so a compacted topic keeps one message per day and location.
type KafkaWriter struct {
	writer messageWriter
	guard
}

// NewKafkaWriter creates a producer for the configured topic.
func NewKafkaWriter(cfg *config.Config, filter *dedup.Filter, store dedup.Store, logger *slog.Logger, metrics *observability.Metrics) *KafkaWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return newKafkaWriter(w, filter, store, logger, metrics)
}

func newKafkaWriter(w messageWriter, filter *dedup.Filter, store dedup.Store, logger *slog.Logger, metrics *observability.Metrics) *KafkaWriter {
	return &KafkaWriter{
		writer: w,
		guard:  newGuard("kafka", filter, store, logger, metrics),
	}
}

func (w *KafkaWriter) Name() string { return w.name }

// Write publishes every record the filter has not seen in a single
// WriteMessages call. Keys are inserted only after the publish succeeds.
func (w *KafkaWriter) Write(ctx context.Context, records []domain.SummaryRecord) error {
	msgs := make([]kafkago.Message, 0, len(records))
	keys := make([]domain.NaturalKey, 0, len(records))
	batch := make(map[domain.NaturalKey]bool, len(records))
	skipped := 0

	for i := range records {
		key := records[i].Key()
		if batch[key] || w.seen(key) {
			skipped++
			continue
		}
		msg, err := serializeToMessage(&records[i])
		if err != nil {
			return w.finish(err, 0, skipped)
		}
		batch[key] = true
		msgs = append(msgs, msg)
		keys = append(keys, key)
	}

	if len(msgs) == 0 {
		return w.finish(nil, 0, skipped)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return w.finish(fmt.Errorf("publish %d records: %w", len(msgs), err), 0, skipped)
	}
	for _, k := range keys {
		w.accept(k)
	}
	return w.finish(nil, len(msgs), skipped)
}

func (w *KafkaWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a SummaryRecord into a Kafka message.
func serializeToMessage(r *domain.SummaryRecord) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize summary record %s: %w", r.Key(), err)
	}
	return kafkago.Message{
		Key:   []byte(r.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "date", Value: []byte(r.Date.UTC().Format(domain.DateLayout))},
			{Key: "created_at", Value: []byte(r.CreatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
