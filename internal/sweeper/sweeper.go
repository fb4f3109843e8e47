// Package sweeper runs the periodic maintenance passes: expired reservations
// go back to available stock and pending orders that were never paid are
// cancelled. Only one worker sweeps at a time.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-core/internal/ledger"
	"github.com/ariefcatur/go-storefront-core/internal/logging"
	"github.com/ariefcatur/go-storefront-core/internal/metrics"
	"github.com/ariefcatur/go-storefront-core/internal/order"
)

const lockName = "sweeper"

type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type Sweeper struct {
	Ledger     *ledger.Ledger
	Orders     *order.Machine
	Lock       Locker
	Metrics    *metrics.Metrics
	Interval   time.Duration
	PendingTTL time.Duration
	Batch      int
	Now        func() time.Time
}

type Result struct {
	Reservations int
	Orders       int
	Skipped      bool
}

// Run sweeps once immediately and then every Interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("sweeper started", zap.Duration("interval", s.Interval), zap.Int("batch", s.Batch))
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunOnce drains expired reservations in batches, then cancels one batch of
// stale pending orders.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	if s.Lock != nil {
		release, ok, err := s.Lock.TryLock(ctx, lockName, 2*s.Interval)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Skipped: true}, nil
		}
		defer release()
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	batch := s.Batch
	if batch <= 0 {
		batch = 200
	}
	var res Result
	for {
		n, err := s.Ledger.Sweep(ctx, now(), batch)
		res.Reservations += n
		if err != nil {
			s.Metrics.SweeperReleased("reservation", res.Reservations)
			return res, err
		}
		if n < batch || ctx.Err() != nil {
			break
		}
	}
	s.Metrics.SweeperReleased("reservation", res.Reservations)

	if s.Orders != nil && s.PendingTTL > 0 {
		n, err := s.Orders.CancelStale(ctx, s.PendingTTL, batch)
		res.Orders = n
		s.Metrics.SweeperReleased("order", n)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}
