package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nopLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishEvents(t *testing.T) {
	t.Run("writes one keyed message per event", func(t *testing.T) {
		w := &fakeWriter{}
		p := NewProducerWithWriter(w, "testcase-events", nopLogger)

		err := p.PublishEvents(context.Background(), []*Event{
			{EventType: "testcase.created", ProjectID: "p1", BatchID: "b1", RecordID: "tc-1", Version: 1},
			{EventType: "import.committed", ProjectID: "p1", BatchID: "b1"},
		})
		require.NoError(t, err)
		require.Len(t, w.messages, 2)

		first := w.messages[0]
		assert.Equal(t, "testcase-events", first.Topic)
		assert.Equal(t, "tc-1", string(first.Key))
		assert.Equal(t, "testcase.created", header(first, "event_type"))
		assert.Equal(t, "p1", header(first, "project_id"))
		assert.Equal(t, SchemaVersion, header(first, "schema_version"))

		var decoded Event
		require.NoError(t, json.Unmarshal(first.Value, &decoded))
		assert.Equal(t, "tc-1", decoded.RecordID)
		assert.False(t, decoded.Timestamp.IsZero())

		assert.Equal(t, "b1", string(w.messages[1].Key))
	})

	t.Run("no events is a no-op", func(t *testing.T) {
		w := &fakeWriter{}
		p := NewProducerWithWriter(w, "topic", nopLogger)
		require.NoError(t, p.PublishEvents(context.Background(), nil))
		assert.Empty(t, w.messages)
	})

	t.Run("write failure is returned", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("broker down")}
		p := NewProducerWithWriter(w, "topic", nopLogger)
		err := p.PublishEvent(context.Background(), &Event{EventType: "import.committed", BatchID: "b1"})
		assert.EqualError(t, err, "broker down")
	})
}

func TestEvent_Key(t *testing.T) {
	assert.Equal(t, "r", (&Event{RecordID: "r", ConflictID: "c", BatchID: "b"}).Key())
	assert.Equal(t, "c", (&Event{ConflictID: "c", BatchID: "b"}).Key())
	assert.Equal(t, "b", (&Event{BatchID: "b"}).Key())
}

func TestIncomingMessage_ParseImportRequest(t *testing.T) {
	t.Run("body project", func(t *testing.T) {
		m := &IncomingMessage{Value: []byte(`{"project_id":"p1","mode":"strict","records":[{"title":"Login"}]}`)}
		require.NoError(t, m.ParseImportRequest())
		assert.Equal(t, "p1", m.ImportRequest.ProjectID)
		assert.Equal(t, "strict", m.ImportRequest.Mode)
		require.Len(t, m.ImportRequest.Records, 1)
		assert.Equal(t, "Login", m.ImportRequest.Records[0]["title"])
	})

	t.Run("header project", func(t *testing.T) {
		m := &IncomingMessage{
			Value:   []byte(`{"records":[]}`),
			Headers: map[string]string{"project_id": "p2"},
		}
		require.NoError(t, m.ParseImportRequest())
		assert.Equal(t, "p2", m.ImportRequest.ProjectID)
	})

	t.Run("missing project", func(t *testing.T) {
		m := &IncomingMessage{Value: []byte(`{"records":[]}`)}
		assert.ErrorIs(t, m.ParseImportRequest(), ErrMissingProject)
	})

	t.Run("malformed", func(t *testing.T) {
		m := &IncomingMessage{Value: []byte(`{`)}
		assert.Error(t, m.ParseImportRequest())
	})
}

func TestConsumer_processMessage(t *testing.T) {
	valid := kafka.Message{
		Topic:   "import-requests",
		Value:   []byte(`{"project_id":"p1","records":[{"title":"Login"}]}`),
		Headers: []kafka.Header{{Key: "request_id", Value: []byte("r1")}},
	}

	t.Run("handled messages are committed", func(t *testing.T) {
		r := &fakeReader{}
		var got *IncomingMessage
		c := NewConsumerWithReader(r, "import-requests", nopLogger, func(_ context.Context, msg *IncomingMessage) error {
			got = msg
			return nil
		})

		c.processMessage(context.Background(), valid)

		require.NotNil(t, got)
		assert.Equal(t, "p1", got.ImportRequest.ProjectID)
		assert.Equal(t, "r1", got.Headers["request_id"])
		assert.Len(t, r.committed, 1)
	})

	t.Run("handler failure is not committed", func(t *testing.T) {
		r := &fakeReader{}
		c := NewConsumerWithReader(r, "import-requests", nopLogger, func(context.Context, *IncomingMessage) error {
			return errors.New("database unavailable")
		})

		c.processMessage(context.Background(), valid)
		assert.Empty(t, r.committed)
	})

	t.Run("malformed messages are committed without handling", func(t *testing.T) {
		r := &fakeReader{}
		called := false
		c := NewConsumerWithReader(r, "import-requests", nopLogger, func(context.Context, *IncomingMessage) error {
			called = true
			return nil
		})

		c.processMessage(context.Background(), kafka.Message{Value: []byte("not json")})
		assert.False(t, called)
		assert.Len(t, r.committed, 1)
	})
}

func TestConsumer_StartStop(t *testing.T) {
	r := &fakeReader{}
	c := NewConsumerWithReader(r, "import-requests", nopLogger, func(context.Context, *IncomingMessage) error { return nil })

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Stop())
	assert.True(t, c.Health())
}
