package shop

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCanAdvance(t *testing.T) {
	all := []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed, PaymentAbandoned}
	allowed := map[[2]PaymentStatus]bool{
		{PaymentPending, PaymentPaid}:      true,
		{PaymentPending, PaymentFailed}:    true,
		{PaymentPending, PaymentAbandoned}: true,
		{PaymentFailed, PaymentPaid}:       true,
		{PaymentAbandoned, PaymentPaid}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanAdvance(from, to); got != allowed[[2]PaymentStatus{from, to}] {
				t.Fatalf("CanAdvance(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestReleasesStockOnCancel(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusPending:    true,
		StatusConfirmed:  true,
		StatusProcessing: false,
		StatusShipped:    false,
	} {
		if s.ReleasesStockOnCancel() != want {
			t.Fatalf("%s: want %v", s, want)
		}
	}
}

func TestTypedErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("row missing")
	se := NewStockError("p1", 3, 1, cause)
	wrapped := fmt.Errorf("reserve: %w", se)
	if !errors.Is(wrapped, ErrInsufficientStock) || !errors.Is(wrapped, cause) {
		t.Fatalf("stock error chain broken: %v", wrapped)
	}

	ue := &UnavailableError{Items: []StockError{*NewStockError("b", 1, 0, nil), *NewStockError("a", 2, 1, nil)}}
	if !errors.Is(ue, ErrStockUnavailable) || ue.First() != "b" {
		t.Fatalf("unavailable error: %v first=%s", ue, ue.First())
	}
	if ue.Error() != "stock unavailable: b,a" {
		t.Fatalf("message = %q", ue.Error())
	}

	var te *TransitionError
	if err := fmt.Errorf("x: %w", &TransitionError{From: StatusShipped, To: StatusPending}); !errors.As(err, &te) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("transition error chain broken: %v", err)
	}

	ae := &AddressError{Fields: map[string]string{"shipping_address.city": "required", "billing_address.country": "iso3166_1_alpha2"}}
	if !errors.Is(ae, ErrAddressInvalid) {
		t.Fatal("address error is not ErrAddressInvalid")
	}
	if ae.Error() != "address invalid: billing_address.country: iso3166_1_alpha2; shipping_address.city: required" {
		t.Fatalf("message = %q", ae.Error())
	}
}

func TestOwnerIDs(t *testing.T) {
	a := AnonOwner("tok")
	if !IsAnonOwner(a) || IsUserOwner(a) {
		t.Fatalf("%s misclassified", a)
	}
	if s, ok := Session(a); !ok || s != "tok" {
		t.Fatalf("session = %q %v", s, ok)
	}
	if _, ok := Session(UserOwner("u")); ok {
		t.Fatal("user owner has a session")
	}
}

func TestReservationExpiry(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)
	r := Reservation{ExpiresAt: at}
	if r.Expired(at.Add(-time.Nanosecond)) || !r.Expired(at) {
		t.Fatal("expiry boundary wrong")
	}
}
