package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/tenant-orders/internal/events"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublishEventFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, 8, nil)
	p.Start()

	env := events.New(events.EventOrderCreated, "order-api", "t1", "order-1", events.OrderCreatedPayload{OrderID: "order-1"})
	require.NoError(t, p.PublishEvent(context.Background(), events.TopicOrderCreated, env))
	require.NoError(t, p.PublishEvent(context.Background(), events.TopicOrderDeleted, env))

	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	m := w.msgs[0]
	assert.Equal(t, events.TopicOrderCreated, m.Topic)
	assert.Equal(t, []byte("order-1"), m.Key)
	assert.Equal(t, events.EventOrderCreated, header(m, "x-event-type"))
	assert.Equal(t, "1", header(m, "x-event-version"))
	assert.Equal(t, "t1", header(m, "x-tenant-id"))

	var got events.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &got))
	assert.Equal(t, env.EventID, got.EventID)
	assert.Equal(t, events.TopicOrderDeleted, w.msgs[1].Topic)
	assert.True(t, w.closed)
}

func TestPublishAfterClose(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, nil)
	p.Start()
	p.Close()
	p.Close()
	p.WaitClosed()

	err := p.Publish(context.Background(), "x", nil, []byte("v"))
	assert.ErrorIs(t, err, ErrProducerClosed)
}

func TestPublishRespectsContextWhenFull(t *testing.T) {
	p := newProducer(&fakeWriter{}, 1, nil) // not started: inbox never drains
	require.NoError(t, p.Publish(context.Background(), "x", nil, []byte("1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, "x", nil, []byte("2")), context.Canceled)
}

func TestWriteErrorsAreLoggedNotFatal(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := newProducer(w, 4, nil)
	p.Start()
	require.NoError(t, p.Publish(context.Background(), "x", nil, []byte("1")))
	p.Close()
	p.WaitClosed()
	assert.Empty(t, w.msgs)
	assert.True(t, w.closed)
}
