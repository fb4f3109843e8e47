package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing, which keeps components usable in tests without a registry.
type Metrics struct {
	reservations     *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	paymentEvents    *prometheus.CounterVec
	sweeperReleased  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	projected        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reservations_total", Help: "Stock reservation attempts by outcome.",
		}, []string{"outcome"}),
		checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkouts_total", Help: "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		checkoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "checkout_duration_seconds", Help: "Checkout latency.",
			Buckets: prometheus.DefBuckets,
		}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_events_total", Help: "Payment status updates by source and outcome.",
		}, []string{"source", "outcome"}),
		sweeperReleased: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweeper_released_total", Help: "Rows released by the periodic sweeps.",
		}, []string{"kind"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests by route template and status code.",
		}, []string{"route", "code"}),
		projected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "projected_events_total", Help: "Domain events consumed by the status projector.",
		}, []string{"event_type", "outcome"}),
	}
	reg.MustRegister(m.reservations, m.checkouts, m.checkoutDuration, m.paymentEvents, m.sweeperReleased, m.httpRequests, m.projected)
	return m
}

func (m *Metrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Checkout(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(outcome).Inc()
	m.checkoutDuration.Observe(took.Seconds())
}

func (m *Metrics) PaymentEvent(source, outcome string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) SweeperReleased(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeperReleased.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) HTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}

func (m *Metrics) Projected(eventType, outcome string) {
	if m == nil {
		return
	}
	m.projected.WithLabelValues(eventType, outcome).Inc()
}
