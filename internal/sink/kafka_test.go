package sink

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-rollup-etl/internal/dedup/deduptest"
	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
)

type fakeProducer struct {
	calls [][]kafkago.Message
	err   error
}

func (f *fakeProducer) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, msgs)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func TestSerializeToMessage(t *testing.T) {
	rec := testRecord(0)
	rec.Point.Rain = math.NaN()

	msg, err := serializeToMessage(&rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("2025-07-15:52.52:13.41"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "date", msg.Headers[0].Key)
	assert.Equal(t, []byte("2025-07-15"), msg.Headers[0].Value)
	assert.Equal(t, "created_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(rec.CreatedAt.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 52.52, decoded["latitude"])
	point, ok := decoded["point"].(map[string]any)
	require.True(t, ok)
	assert.Nil(t, point["rain"])
}

func TestKafkaWriter_OneMessagePerKey(t *testing.T) {
	producer := &fakeProducer{}
	store := &deduptest.MemoryStore{}
	w := newKafkaWriter(producer, newFilter(), store, discardLogger(), newMetrics())

	records := append(repeat(testRecord(0), 10), testRecord(1))
	require.NoError(t, w.Write(context.Background(), records))

	require.Len(t, producer.calls, 1, "single WriteMessages call")
	require.Len(t, producer.calls[0], 2)
	assert.Equal(t, []byte(testRecord(0).Key()), producer.calls[0][0].Key)
	assert.Equal(t, []byte(testRecord(1).Key()), producer.calls[0][1].Key)
	assert.Equal(t, 1, store.Saves)

	// Re-publishing the same records sends nothing.
	require.NoError(t, w.Write(context.Background(), records))
	assert.Len(t, producer.calls, 1)
	assert.Equal(t, 2, store.Saves)
	assert.Equal(t, "kafka", w.Name())
}

func TestKafkaWriter_FailedPublishLeavesKeysOut(t *testing.T) {
	boom := errors.New("leader not available")
	producer := &fakeProducer{err: boom}
	store := &deduptest.MemoryStore{}
	filter := newFilter()
	w := newKafkaWriter(producer, filter, store, discardLogger(), newMetrics())

	err := w.Write(context.Background(), []domain.SummaryRecord{testRecord(0)})
	require.ErrorIs(t, err, boom)
	assert.False(t, filter.MightContain(string(testRecord(0).Key())))
	assert.Equal(t, 1, store.Saves)

	producer.err = nil
	require.NoError(t, w.Write(context.Background(), []domain.SummaryRecord{testRecord(0)}))
	assert.Len(t, producer.calls, 1)
}
