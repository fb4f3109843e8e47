package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
)

const version = 1

// Publisher is the async producer surface the emitter needs.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Emitter wraps payloads in an Envelope and hands them to a Publisher.
// A nil *Emitter drops events.
type Emitter struct {
	Pub      Publisher
	Producer string
	Now      func() time.Time
}

func NewEmitter(pub Publisher, producer string) *Emitter {
	return &Emitter{Pub: pub, Producer: producer, Now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	if e == nil || e.Pub == nil {
		return
	}
	p, err := json.Marshal(payload)
	if err != nil {
		logging.FromContext(ctx).Error("event encode failed", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  version,
		OccurredAt:    e.Now().UTC(),
		Producer:      e.Producer,
		CorrelationID: orderID,
		Payload:       p,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ev.TraceID = sc.TraceID().String()
	}
	e.Pub.Publish(topic, PartitionKey(orderID), MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(version))},
	)
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope payload into its concrete type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
