package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "clover.events", testLogger())

	err := p.Publish(context.Background(), &Event{
		EventType: "listing.merged",
		Key:       "p-1",
		RunID:     "run-1",
		Data:      json.RawMessage(`{"listing_id":"l-1"}`),
		Version:   2,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "clover.events", msg.Topic)
	assert.Equal(t, "p-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "listing.merged", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &recordingWriter{}
	p := newProducer(w, "t", testLogger())

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, w.msgs)

	events := []*Event{{EventType: "a", Key: "1"}, {EventType: "b", Key: "2"}}
	require.NoError(t, p.PublishBatch(context.Background(), events))
	assert.Len(t, w.msgs, 2)
}

func TestProducer_PublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	p := newProducer(w, "t", testLogger())

	err := p.Publish(context.Background(), &Event{EventType: "x", Key: "k"})
	assert.EqualError(t, err, "broker down")
}
