// Package ledger keeps per-product stock counters and the time-bounded
// reservations drawn against them. For every product,
// available + reserved + committed stays constant except for explicit restocks.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/retry"
	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type Ledger struct {
	store   shop.Store
	ttl     time.Duration
	retry   retry.Policy
	now     func() time.Time
	newID   func() string
	metrics *metrics.Metrics
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func WithRetry(p retry.Policy) Option { return func(l *Ledger) { l.retry = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func New(store shop.Store, defaultTTL time.Duration, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		ttl:   defaultTTL,
		retry: retry.Policy{Attempts: 3, Base: 20 * time.Millisecond, Max: 500 * time.Millisecond},
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func IsContention(err error) bool { return errors.Is(err, shop.ErrContention) }

// Reserve holds qty units of productID for holderID until now+ttl. A ttl <= 0
// uses the ledger default. Storage contention is retried with backoff; when
// retries run out the caller gets a *shop.StockError wrapping the contention.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int, holderID string, ttl time.Duration) (shop.Reservation, error) {
	log := logging.FromContext(ctx)
	var res shop.Reservation
	err := retry.Do(ctx, l.retry, IsContention, func(ctx context.Context) error {
		return l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			var err error
			res, err = l.ReserveIn(ctx, tx, productID, qty, holderID, ttl)
			return err
		})
	})
	switch {
	case err == nil:
		l.metrics.Reservation("reserved")
		log.Info("stock reserved",
			zap.String("reservation_id", res.ID), zap.String("product_id", productID),
			zap.Int("qty", qty), zap.String("holder_id", holderID), zap.Time("expires_at", res.ExpiresAt))
		return res, nil
	case IsContention(err):
		l.metrics.Reservation("contention")
		log.Warn("reserve gave up under contention", zap.String("product_id", productID), zap.Int("qty", qty), zap.Error(err))
		return shop.Reservation{}, shop.NewStockError(productID, qty, 0, err)
	case errors.Is(err, shop.ErrInsufficientStock):
		l.metrics.Reservation("insufficient")
		log.Info("reserve rejected", zap.String("product_id", productID), zap.Int("qty", qty), zap.Error(err))
		return shop.Reservation{}, err
	default:
		l.metrics.Reservation("error")
		return shop.Reservation{}, err
	}
}

// ReserveIn is Reserve inside the caller's transaction, without retries.
func (l *Ledger) ReserveIn(ctx context.Context, tx shop.Tx, productID string, qty int, holderID string, ttl time.Duration) (shop.Reservation, error) {
	if qty <= 0 {
		return shop.Reservation{}, shop.ErrInvalidQuantity
	}
	if ttl <= 0 {
		ttl = l.ttl
	}
	stock := tx.Stock()
	ps, err := stock.LockStock(ctx, productID)
	if errors.Is(err, shop.ErrProductNotFound) {
		return shop.Reservation{}, shop.NewStockError(productID, qty, 0, nil)
	}
	if err != nil {
		return shop.Reservation{}, err
	}
	if ps.Available < qty {
		return shop.Reservation{}, shop.NewStockError(productID, qty, ps.Available, nil)
	}
	ok, err := stock.Hold(ctx, productID, qty)
	if err != nil {
		return shop.Reservation{}, err
	}
	if !ok {
		return shop.Reservation{}, shop.NewStockError(productID, qty, ps.Available, nil)
	}

	now := l.now().UTC()
	res := shop.Reservation{
		ID:        l.newID(),
		ProductID: productID,
		Qty:       qty,
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := stock.InsertReservation(ctx, res); err != nil {
		return shop.Reservation{}, err
	}
	return res, nil
}

// Commit converts a reservation into a permanent decrement.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	err := retry.Do(ctx, l.retry, IsContention, func(ctx context.Context) error {
		return l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			return l.CommitIn(ctx, tx, reservationID)
		})
	})
	if err == nil {
		logging.FromContext(ctx).Info("reservation committed", zap.String("reservation_id", reservationID))
	}
	return err
}

// CommitIn fails with ErrReservationExpired once the deadline has passed; the
// reservation is then left for the sweep.
func (l *Ledger) CommitIn(ctx context.Context, tx shop.Tx, reservationID string) error {
	stock := tx.Stock()
	res, err := stock.LockReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.Expired(l.now()) {
		return shop.ErrReservationExpired
	}
	if _, err := stock.DeleteReservation(ctx, res.ID); err != nil {
		return err
	}
	return stock.ConsumeHeld(ctx, res.ProductID, res.Qty)
}

// Release returns the reservation's quantity to available. Releasing a
// reservation that no longer exists is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	var released bool
	err := retry.Do(ctx, l.retry, IsContention, func(ctx context.Context) error {
		return l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
			var err error
			released, err = l.ReleaseIn(ctx, tx, reservationID)
			return err
		})
	})
	if err == nil && released {
		logging.FromContext(ctx).Info("reservation released", zap.String("reservation_id", reservationID))
	}
	return err
}

func (l *Ledger) ReleaseIn(ctx context.Context, tx shop.Tx, reservationID string) (bool, error) {
	stock := tx.Stock()
	res, err := stock.LockReservation(ctx, reservationID)
	if errors.Is(err, shop.ErrReservationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, release(ctx, stock, res)
}

func release(ctx context.Context, stock shop.StockRepo, res shop.Reservation) error {
	deleted, err := stock.DeleteReservation(ctx, res.ID)
	if err != nil || !deleted {
		return err
	}
	return stock.ReturnHeld(ctx, res.ProductID, res.Qty)
}

// ReleaseHolder releases every hold holderID has on productID and returns the
// total quantity given back.
func (l *Ledger) ReleaseHolder(ctx context.Context, tx shop.Tx, holderID, productID string) (int, error) {
	stock := tx.Stock()
	held, err := stock.ActiveByHolder(ctx, holderID, productID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, res := range held {
		if err := release(ctx, stock, res); err != nil {
			return total, err
		}
		total += res.Qty
	}
	return total, nil
}

// RestockIn credits qty back to available, used when a committed order is
// cancelled.
func (l *Ledger) RestockIn(ctx context.Context, tx shop.Tx, productID string, qty int) error {
	if qty <= 0 {
		return shop.ErrInvalidQuantity
	}
	return tx.Stock().Restock(ctx, productID, qty)
}

// Sweep releases up to limit reservations whose deadline is at or before now.
// Rows locked by an in-flight commit are skipped and picked up next round.
func (l *Ledger) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	n := 0
	err := l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		n = 0
		stock := tx.Stock()
		expired, err := stock.LockExpired(ctx, now, limit)
		if err != nil {
			return err
		}
		for _, res := range expired {
			if err := release(ctx, stock, res); err != nil {
				return fmt.Errorf("release %s: %w", res.ID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.FromContext(ctx).Info("expired reservations released", zap.Int("count", n))
	}
	return n, nil
}

// Reservation returns an active reservation or ErrReservationNotFound.
func (l *Ledger) Reservation(ctx context.Context, id string) (shop.Reservation, error) {
	var res shop.Reservation
	err := l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		res, err = tx.Stock().GetReservation(ctx, id)
		return err
	})
	return res, err
}

func (l *Ledger) Stock(ctx context.Context, productID string) (shop.ProductStock, error) {
	var ps shop.ProductStock
	err := l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		ps, err = tx.Stock().GetStock(ctx, productID)
		return err
	})
	return ps, err
}

// SetStock sets the available counter for productID, creating the row if
// needed. Reserved units are untouched.
func (l *Ledger) SetStock(ctx context.Context, productID string, available int) (shop.ProductStock, error) {
	if available < 0 {
		return shop.ProductStock{}, shop.ErrInvalidQuantity
	}
	var ps shop.ProductStock
	err := l.store.InTx(ctx, func(ctx context.Context, tx shop.Tx) error {
		var err error
		ps, err = tx.Stock().UpsertStock(ctx, productID, available)
		return err
	})
	if err == nil {
		logging.FromContext(ctx).Info("stock set", zap.String("product_id", productID), zap.Int("available", available))
	}
	return ps, err
}
