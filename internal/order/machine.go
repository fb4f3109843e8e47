// Package order drives orders through their lifecycle. Every status change
// is validated against the transition table, applied with a compare-and-set
// and recorded as an immutable history row in the same transaction.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/events"
	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

const SweeperActor = "system:sweeper"

// StatusCache is the read-side status projection, invalidated after every
// committed transition.
type StatusCache interface {
	InvalidateStatus(ctx context.Context, orderID string) error
}

// Actor is the caller requesting a change.
type Actor struct {
	ID    string // owner id, "admin:<sub>" or a system name
	Admin bool
}

type Machine struct {
	store  shop.Store
	ledger *ledger.Ledger
	events *events.Emitter
	cache  StatusCache
	retry  retry.Policy
	now    func() time.Time
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option { return func(m *Machine) { m.now = now } }

func WithEvents(e *events.Emitter) Option { return func(m *Machine) { m.events = e } }

func WithStatusCache(c StatusCache) Option { return func(m *Machine) { m.cache = c } }

func New(store shop.Store, l *ledger.Ledger, opts ...Option) *Machine {
	m := &Machine{
		store:  store,
		ledger: l,
		retry:  retry.Policy{Attempts: 3, Base: 20 * time.Millisecond, Max: 500 * time.Millisecond},
		now:    time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Change describes one committed transition.
type Change struct {
	Order shop.Order
	From  shop.Status
	Actor string
	Note  string
}

// TransitionIn moves the order to `to` inside the caller's transaction.
// Cancelling credits every item quantity back to available stock.
func (m *Machine) TransitionIn(ctx context.Context, tx shop.Tx, orderID string, to shop.Status, note, actor string) (Change, error) {
	orders := tx.Orders()
	o, err := orders.LockOrder(ctx, orderID)
	if err != nil {
		return Change{}, err
	}
	from := o.Status
	if !shop.CanTransition(from, to) {
		return Change{}, &shop.TransitionError{From: from, To: to}
	}
	at := m.now().UTC()
	ok, err := orders.SetStatus(ctx, orderID, from, to, at)
	if err != nil {
		return Change{}, err
	}
	if !ok {
		return Change{}, &shop.TransitionError{From: from, To: to}
	}
	if err := orders.AppendHistory(ctx, orderID, shop.StatusEntry{Status: to, Note: note, Actor: actor, CreatedAt: at}); err != nil {
		return Change{}, err
	}
	if to == shop.StatusCancelled && from.ReleasesStockOnCancel() {
		for _, it := range o.Items {
			if err := m.ledger.RestockIn(ctx, tx, it.ProductID, it.Qty); err != nil {
				return Change{}, fmt.Errorf("restock %s: %w", it.ProductID, err)
			}
		}
	}
	o.Status = to
	o.UpdatedAt = at
	return Change{Order: o, From: from, Actor: actor, Note: note}, nil
}

// Transition runs TransitionIn in its own transaction and publishes the change.
func (m *Machine) Transition(ctx context.Context, orderID string, to shop.Status, note, actor string) (shop.Order, error) {
	var ch Change
	err := retry.Do(ctx, m.retry, ledger.IsContention, func(ctx context.Context) error {
		return m.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			var err error
			ch, err = m.TransitionIn(ctx, tx, orderID, to, note, actor)
			return err
		})
	})
	if err != nil {
		return shop.Order{}, err
	}
	m.Published(ctx, ch)
	return ch.Order, nil
}

// Cancel cancels on behalf of the order's owner or an admin.
func (m *Machine) Cancel(ctx context.Context, orderID string, actor Actor, note string) (shop.Order, error) {
	if note == "" {
		note = "Cancelled by customer"
	}
	var ch Change
	err := retry.Do(ctx, m.retry, ledger.IsContention, func(ctx context.Context) error {
		return m.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			o, err := tx.Orders().LockOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if !actor.Admin && o.OwnerID != actor.ID {
				return shop.ErrForbidden
			}
			ch, err = m.TransitionIn(ctx, tx, orderID, shop.StatusCancelled, note, actor.ID)
			return err
		})
	})
	if err != nil {
		return shop.Order{}, err
	}
	m.Published(ctx, ch)
	return ch.Order, nil
}

// Published emits order.status.changed and drops the cached status. Callers
// composing TransitionIn into their own transaction call it after commit.
func (m *Machine) Published(ctx context.Context, ch Change) {
	logging.FromContext(ctx).Info("order transitioned",
		zap.String("order_id", ch.Order.ID), zap.String("from", string(ch.From)),
		zap.String("to", string(ch.Order.Status)), zap.String("actor", ch.Actor))

	m.events.Emit(ctx, events.TopicOrderStatusChanged, events.EventOrderStatusChanged, ch.Order.ID,
		events.OrderStatusChangedPayload{
			OrderID:       ch.Order.ID,
			From:          string(ch.From),
			To:            string(ch.Order.Status),
			PaymentStatus: string(ch.Order.PaymentStatus),
			Actor:         ch.Actor,
			Note:          ch.Note,
			At:            ch.Order.UpdatedAt,
		})
	if m.cache != nil {
		if err := m.cache.InvalidateStatus(ctx, ch.Order.ID); err != nil {
			logging.FromContext(ctx).Warn("status cache invalidate failed", zap.String("order_id", ch.Order.ID), zap.Error(err))
		}
	}
}

// Get returns the order with items, addresses and history.
func (m *Machine) Get(ctx context.Context, orderID string) (shop.Order, error) {
	var o shop.Order
	err := m.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		o, err = tx.Orders().GetOrder(ctx, orderID)
		return err
	})
	return o, err
}

// CancelStale cancels up to limit pending, unpaid orders created more than
// olderThan ago and returns how many were cancelled. Orders that moved on in
// the meantime are skipped.
func (m *Machine) CancelStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := m.now().Add(-olderThan)
	var ids []string
	err := m.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		ids, err = tx.Orders().StalePending(ctx, cutoff, limit)
		return err
	})
	if err != nil {
		return 0, err
	}

	log := logging.FromContext(ctx)
	n := 0
	for _, id := range ids {
		var (
			ch      Change
			skipped bool
		)
		err := m.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			o, err := tx.Orders().LockOrder(ctx, id)
			if err != nil {
				return err
			}
			if o.Status != shop.StatusPending || o.PaymentStatus == shop.PaymentPaid {
				skipped = true
				return nil
			}
			ch, err = m.TransitionIn(ctx, tx, id, shop.StatusCancelled, "Payment window expired", SweeperActor)
			return err
		})
		if err != nil {
			if errors.Is(err, shop.ErrContention) {
				continue
			}
			log.Error("stale order cancel failed", zap.String("order_id", id), zap.Error(err))
			continue
		}
		if !skipped {
			m.Published(ctx, ch)
			n++
		}
	}
	return n, nil
}
