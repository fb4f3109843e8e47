// Package projector keeps the Redis order status projection current from
// the domain event stream.
package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/redisx"
)

const consumerName = "projector"

type Cache interface {
	GetStatus(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	SetStatus(ctx context.Context, st redisx.OrderStatus) error
}

type Dedup interface {
	FirstSeen(ctx context.Context, consumer, id string) (bool, error)
	Forget(ctx context.Context, consumer, id string) error
}

type Projector struct {
	Cache   Cache
	Dedup   Dedup
	Metrics *metrics.Metrics
}

var errSkip = errors.New("not a projected event")

// Handle is a kafka.Handler. Malformed messages are logged and acknowledged
// so they never block the partition; storage errors are returned so the
// offset stays uncommitted.
func (p *Projector) Handle(ctx context.Context, m kafkago.Message) error {
	log := logging.FromContext(ctx).With(zap.String("topic", m.Topic), zap.Int64("offset", m.Offset))

	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Warn("undecodable event dropped", zap.Error(err))
		p.Metrics.Projected("unknown", "malformed")
		return nil
	}
	log = log.With(zap.String("event_id", env.EventID), zap.String("event_type", env.EventType))

	if p.Dedup != nil && env.EventID != "" {
		first, err := p.Dedup.FirstSeen(ctx, consumerName, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup: %w", err)
		}
		if !first {
			p.Metrics.Projected(env.EventType, "duplicate")
			return nil
		}
	}

	outcome, err := p.project(ctx, env)
	switch {
	case errors.Is(err, errSkip):
		p.Metrics.Projected(env.EventType, "ignored")
		return nil
	case err != nil && !isStorage(err):
		log.Warn("malformed event dropped", zap.Error(err))
		p.Metrics.Projected(env.EventType, "malformed")
		return nil
	case err != nil:
		if p.Dedup != nil && env.EventID != "" {
			if ferr := p.Dedup.Forget(ctx, consumerName, env.EventID); ferr != nil {
				log.Warn("dedup forget failed", zap.Error(ferr))
			}
		}
		p.Metrics.Projected(env.EventType, "error")
		return err
	}
	p.Metrics.Projected(env.EventType, outcome)
	log.Debug("event projected", zap.String("order_id", env.CorrelationID), zap.String("outcome", outcome))
	return nil
}

type storageError struct{ err error }

func (e storageError) Error() string { return "status cache: " + e.err.Error() }
func (e storageError) Unwrap() error { return e.err }

func isStorage(err error) bool {
	var se storageError
	return errors.As(err, &se)
}

func (p *Projector) project(ctx context.Context, env events.Envelope) (string, error) {
	var next redisx.OrderStatus
	switch env.EventType {
	case events.EventOrderCreated:
		pl, err := events.UnwrapPayload[events.OrderCreatedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		next = redisx.OrderStatus{OrderID: pl.OrderID, OwnerID: pl.OwnerID, Status: pl.Status, PaymentStatus: pl.PaymentStatus, UpdatedAt: env.OccurredAt}
	case events.EventOrderStatusChanged:
		pl, err := events.UnwrapPayload[events.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		at := pl.At
		if at.IsZero() {
			at = env.OccurredAt
		}
		next = redisx.OrderStatus{OrderID: pl.OrderID, Status: pl.To, PaymentStatus: pl.PaymentStatus, UpdatedAt: at}
	case events.EventPaymentUpdated:
		pl, err := events.UnwrapPayload[events.PaymentUpdatedPayload](env.Payload)
		if err != nil {
			return "", err
		}
		next = redisx.OrderStatus{OrderID: pl.OrderID, Status: pl.OrderStatus, PaymentStatus: pl.PaymentStatus, UpdatedAt: env.OccurredAt}
	default:
		return "", errSkip
	}
	if next.OrderID == "" || next.Status == "" {
		return "", fmt.Errorf("%s without order status", env.EventType)
	}

	// Topics are ordered per partition only; an older event arriving after a
	// newer one must not roll the projection back.
	cur, ok, err := p.Cache.GetStatus(ctx, next.OrderID)
	if err != nil {
		return "", storageError{err}
	}
	if ok && cur.UpdatedAt.After(next.UpdatedAt) {
		return "stale", nil
	}
	if next.OwnerID == "" && ok {
		next.OwnerID = cur.OwnerID
	}
	if err := p.Cache.SetStatus(ctx, next); err != nil {
		return "", storageError{err}
	}
	return "applied", nil
}
