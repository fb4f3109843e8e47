package shop

import (
	"context"
	"time"
)

// Store runs units of work. Every mutation of stock, carts, orders and
// payments happens inside InTx; rows read with a Lock* method stay locked
// until fn returns. A non-nil error from fn rolls everything back.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Stock() StockRepo
	Carts() CartRepo
	Orders() OrderRepo
	Payments() PaymentRepo
}

type StockRepo interface {
	// LockStock returns the row locked for update, or ErrProductNotFound.
	LockStock(ctx context.Context, productID string) (ProductStock, error)
	// GetStock reads the row without locking it.
	GetStock(ctx context.Context, productID string) (ProductStock, error)
	// Hold moves qty from available to reserved when available >= qty.
	Hold(ctx context.Context, productID string, qty int) (ok bool, err error)
	// ConsumeHeld permanently removes qty from reserved.
	ConsumeHeld(ctx context.Context, productID string, qty int) error
	// ReturnHeld moves qty from reserved back to available.
	ReturnHeld(ctx context.Context, productID string, qty int) error
	// Restock credits qty to available.
	Restock(ctx context.Context, productID string, qty int) error
	UpsertStock(ctx context.Context, productID string, available int) (ProductStock, error)

	InsertReservation(ctx context.Context, r Reservation) error
	// LockReservation returns ErrReservationNotFound when absent.
	LockReservation(ctx context.Context, id string) (Reservation, error)
	GetReservation(ctx context.Context, id string) (Reservation, error)
	DeleteReservation(ctx context.Context, id string) (bool, error)
	// ActiveByHolder lists holder's reservations for productID, locked.
	ActiveByHolder(ctx context.Context, holderID, productID string) ([]Reservation, error)
	// LockExpired returns up to limit expired reservations, skipping rows
	// another transaction holds.
	LockExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
}

type CartRepo interface {
	// LockCart returns the cart with its lines; exists is false when the
	// owner has no cart row.
	LockCart(ctx context.Context, ownerID string) (cart Cart, exists bool, err error)
	GetCart(ctx context.Context, ownerID string) (Cart, error)
	AddQty(ctx context.Context, ownerID, productID string, qty int) error
	SetQty(ctx context.Context, ownerID, productID string, qty int) error
	DeleteLine(ctx context.Context, ownerID, productID string) error
	ClearLines(ctx context.Context, ownerID string) error
	DeleteCart(ctx context.Context, ownerID string) (bool, error)
}

type OrderRepo interface {
	NextOrderSeq(ctx context.Context) (int64, error)
	InsertOrder(ctx context.Context, o Order) error
	AppendHistory(ctx context.Context, orderID string, e StatusEntry) error
	// LockOrder returns the order with items, or ErrOrderNotFound.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	// GetOrder returns the order with items, addresses and history.
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// SetStatus moves status from -> to; false when the row was not in from.
	SetStatus(ctx context.Context, orderID string, from, to Status, at time.Time) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID string, ps PaymentStatus, at time.Time) error
	// StalePending lists pending, unpaid orders created before cutoff.
	StalePending(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

type PaymentRepo interface {
	InsertPayment(ctx context.Context, p Payment) error
	// LockByReference returns ErrPaymentNotFound when absent.
	LockByReference(ctx context.Context, reference string) (Payment, error)
	// AdvanceStatus sets status from -> to; false when the row was not in from.
	AdvanceStatus(ctx context.Context, reference string, from, to PaymentStatus, channel string, gatewayResponse []byte, at time.Time) (bool, error)
	ByOrder(ctx context.Context, orderID string) ([]Payment, error)
}
