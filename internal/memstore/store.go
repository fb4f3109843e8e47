// Package memstore is an in-memory shop.Store. Transactions are serialized
// behind one mutex and run against a copy of the state that replaces the live
// state only on success, so rollback semantics match the relational store.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-core/internal/shop"
)

type cartRow struct {
	lines     []shop.CartLine
	updatedAt time.Time
}

type state struct {
	stock        map[string]shop.ProductStock
	reservations map[string]shop.Reservation
	carts        map[string]cartRow
	orders       map[string]shop.Order
	orderSeq     int64
	payments     map[string]shop.Payment // by reference
}

func newState() *state {
	return &state{
		stock:        map[string]shop.ProductStock{},
		reservations: map[string]shop.Reservation{},
		carts:        map[string]cartRow{},
		orders:       map[string]shop.Order{},
		payments:     map[string]shop.Payment{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.stock {
		c.stock[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = cartRow{lines: append([]shop.CartLine(nil), v.lines...), updatedAt: v.updatedAt}
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	c.orderSeq = s.orderSeq
	for k, v := range s.payments {
		v.GatewayResponse = append([]byte(nil), v.GatewayResponse...)
		c.payments[k] = v
	}
	return c
}

func cloneOrder(o shop.Order) shop.Order {
	o.Items = append([]shop.OrderItem(nil), o.Items...)
	o.History = append([]shop.StatusEntry(nil), o.History...)
	return o
}

type Store struct {
	mu     sync.Mutex
	st     *state
	now    func() time.Time
	faults *faults
}

func New() *Store {
	return &Store{st: newState(), now: time.Now, faults: &faults{m: map[string]*fault{}}}
}

// WithClock replaces the time source used for row timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx shop.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.faults.take("begin"); err != nil {
		return err
	}
	t := &tx{st: s.st.clone(), now: s.now, faults: s.faults}
	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := s.faults.take("commit"); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

type tx struct {
	st     *state
	now    func() time.Time
	faults *faults
}

func (t *tx) Stock() shop.StockRepo      { return stockRepo{t} }
func (t *tx) Carts() shop.CartRepo       { return cartRepo{t} }
func (t *tx) Orders() shop.OrderRepo     { return orderRepo{t} }
func (t *tx) Payments() shop.PaymentRepo { return paymentRepo{t} }

type fault struct {
	err   error
	times int
}

type faults struct {
	mu sync.Mutex
	m  map[string]*fault
}

func (f *faults) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ft, ok := f.m[op]
	if !ok || ft.times == 0 {
		return nil
	}
	ft.times--
	return ft.err
}

// FailOn makes the next `times` calls of op return err. op is a repository
// method name (e.g. "InsertOrder", "Hold") or "begin"/"commit" for the
// transaction boundaries. times < 0 fails forever.
func (s *Store) FailOn(op string, err error, times int) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	s.faults.m[op] = &fault{err: err, times: times}
}

// Snapshot helpers for assertions.

func (s *Store) StockOf(productID string) (shop.ProductStock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.st.stock[productID]
	return ps, ok
}

func (s *Store) ReservationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.reservations)
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}
