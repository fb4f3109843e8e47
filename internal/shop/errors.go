package shop

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInsufficientStock         = errors.New("insufficient stock")
	ErrStockUnavailable          = errors.New("stock unavailable")
	ErrEmptyCart                 = errors.New("cart is empty")
	ErrAddressInvalid            = errors.New("address invalid")
	ErrReservationNotFound       = errors.New("reservation not found")
	ErrReservationExpired        = errors.New("reservation expired")
	ErrInvalidTransition         = errors.New("invalid status transition")
	ErrPaymentVerificationFailed = errors.New("payment verification failed")
	ErrInvalidWebhookSignature   = errors.New("invalid webhook signature")
	ErrOrderNotFound             = errors.New("order not found")
	ErrPaymentNotFound           = errors.New("payment not found")
	ErrOrderNotPayable           = errors.New("order not payable")
	ErrProductNotFound           = errors.New("product not found")
	ErrInvalidQuantity           = errors.New("invalid quantity")
	ErrForbidden                 = errors.New("forbidden")
	ErrMalformedPayload          = errors.New("malformed payload")

	// ErrContention marks transient storage conflicts (serialization failure,
	// deadlock, lock timeout). Callers may retry the whole unit of work.
	ErrContention = errors.New("storage contention")

	ErrGatewayTimeout     = errors.New("payment gateway timeout")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// StockError describes one product that could not be reserved.
type StockError struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	cause     error
}

func NewStockError(productID string, requested, available int, cause error) *StockError {
	return &StockError{ProductID: productID, Requested: requested, Available: available, cause: cause}
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

func (e *StockError) Unwrap() error { return e.cause }

// UnavailableError is the checkout failure naming every product that could not
// be held, first failing line first.
type UnavailableError struct {
	Items []StockError `json:"items"`
}

func (e *UnavailableError) Error() string {
	ids := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		ids = append(ids, it.ProductID)
	}
	return "stock unavailable: " + strings.Join(ids, ",")
}

func (e *UnavailableError) Is(target error) bool { return target == ErrStockUnavailable }

// First returns the first unavailable product id.
func (e *UnavailableError) First() string {
	if len(e.Items) == 0 {
		return ""
	}
	return e.Items[0].ProductID
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type AddressError struct {
	Fields map[string]string
}

func (e *AddressError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		keys = append(keys, k+": "+v)
	}
	sort.Strings(keys)
	return "address invalid: " + strings.Join(keys, "; ")
}

func (e *AddressError) Is(target error) bool { return target == ErrAddressInvalid }
