package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func submittedEvent() *models.OrderSubmittedEvent {
	return &models.OrderSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "evt-1",
			EventType: models.EventTypeOrderSubmitted,
			Timestamp: time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		Order: models.Order{ID: "ORD-1700000000000", CustomerName: "Ada Lovelace"},
		Total: decimal.RequireFromString("61.68"),
	}
}

func TestPublishOrderSubmitted(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(NewProducerWithWriter(w))

	require.NoError(t, ep.PublishOrderSubmitted(context.Background(), submittedEvent()))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "order-ORD-1700000000000", string(w.msgs[0].Key))

	var decoded models.OrderSubmittedEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, models.EventTypeOrderSubmitted, decoded.EventType)
	assert.True(t, decoded.Total.Equal(decimal.RequireFromString("61.68")))
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(NewProducerWithWriter(w))

	err := ep.PublishOrderSubmitted(context.Background(), submittedEvent())
	assert.ErrorContains(t, err, "broker down")
}

func TestOnCartChangedSwallowsErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(NewProducerWithWriter(w))

	assert.NotPanics(t, func() {
		ep.OnCartChanged(context.Background(), models.CartChangedEvent{SessionID: "s1"})
	})

	w.err = nil
	ep.OnCartChanged(context.Background(), models.CartChangedEvent{SessionID: "s1", Op: "add"})
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "cart-s1", string(w.msgs[0].Key))
}

func TestHandleMessageRoutesByType(t *testing.T) {
	h := NewEventHandler()

	var gotOrder *models.OrderSubmittedEvent
	var gotCart *models.CartChangedEvent
	h.OnOrderSubmitted(func(_ context.Context, e *models.OrderSubmittedEvent) error {
		gotOrder = e
		return nil
	})
	h.OnCartChanged(func(_ context.Context, e *models.CartChangedEvent) error {
		gotCart = e
		return nil
	})

	raw, _ := json.Marshal(submittedEvent())
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	require.NotNil(t, gotOrder)
	assert.Equal(t, "ORD-1700000000000", gotOrder.Order.ID)

	raw, _ = json.Marshal(models.CartChangedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeCartChanged},
		SessionID: "s2",
		ItemCount: 3,
	})
	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: raw}))
	require.NotNil(t, gotCart)
	assert.Equal(t, 3, gotCart.ItemCount)
}

func TestHandleMessageIgnoresUnknownAndRejectsGarbage(t *testing.T) {
	h := NewEventHandler()

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"event_type":"SOMETHING"}`)}))
	assert.Error(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}))
}
