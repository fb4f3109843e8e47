package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Reservation("ok")
	m.Checkout("ok", time.Second)
	m.PaymentEvent("webhook", "applied")
	m.SweeperReleased("reservation", 3)
	m.HTTPRequest("/checkout", "201")
	m.Projected("OrderCreated", "applied")
}

func TestCollectorsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Reservation("ok")
	m.Checkout("ok", 10*time.Millisecond)
	m.SweeperReleased("reservation", 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	want := map[string]bool{
		"storefront_reservations_total":        false,
		"storefront_checkouts_total":           false,
		"storefront_checkout_duration_seconds": false,
		"storefront_sweeper_released_total":    false,
	}
	for _, f := range families {
		if _, ok := want[f.GetName()]; ok {
			want[f.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("metric %s not gathered", name)
		}
	}
}
