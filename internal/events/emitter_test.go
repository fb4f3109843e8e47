package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

type recorded struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type fakePublisher struct{ msgs []recorded }

func (f *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	f.msgs = append(f.msgs, recorded{topic: topic, key: key, value: value, headers: headers})
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	e := NewEmitter(pub, "storefront-api")
	e.Now = func() time.Time { return at }

	e.Emit(context.Background(), TopicOrderStatusChanged, EventOrderStatusChanged, "o-1",
		OrderStatusChangedPayload{OrderID: "o-1", From: "pending", To: "confirmed", Actor: "payment-gateway"})

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	m := pub.msgs[0]
	if m.topic != TopicOrderStatusChanged || string(m.key) != "o-1" {
		t.Fatalf("topic/key = %s/%s", m.topic, m.key)
	}
	var env Envelope
	if err := json.Unmarshal(m.value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventType != EventOrderStatusChanged || env.EventVersion != 1 || env.CorrelationID != "o-1" || env.EventID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if !env.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at = %v", env.OccurredAt)
	}
	p, err := UnwrapPayload[OrderStatusChangedPayload](env.Payload)
	if err != nil {
		t.Fatalf("unwrap: %v", err)
	}
	if p.To != "confirmed" || p.Actor != "payment-gateway" {
		t.Fatalf("payload = %+v", p)
	}
	if len(m.headers) != 2 || string(m.headers[0].Value) != EventOrderStatusChanged {
		t.Fatalf("headers = %+v", m.headers)
	}
}

func TestNilEmitterDropsEvents(t *testing.T) {
	var e *Emitter
	e.Emit(context.Background(), TopicOrderCreated, EventOrderCreated, "o-1", OrderCreatedPayload{})
}
