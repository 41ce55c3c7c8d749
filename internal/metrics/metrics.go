package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	payments          *prometheus.CounterVec
	receiptsIssued    prometheus.Counter
	idempotentReplays prometheus.Counter
	quotaDenials      *prometheus.CounterVec
	eventsDropped     prometheus.Counter
	requestDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking status transitions applied.",
		}, []string{"from", "to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payments_total",
			Help: "Payments recorded by type.",
		}, []string{"type"}),
		receiptsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_receipts_issued_total",
			Help: "Receipts issued.",
		}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_idempotent_replays_total",
			Help: "Payment recordings answered from an existing external reference.",
		}),
		quotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_quota_denials_total",
			Help: "Service creations refused by plan quota.",
		}, []string{"tier"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Domain events dropped because the dispatch buffer was full.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.transitions, m.payments, m.receiptsIssued, m.idempotentReplays,
		m.quotaDenials, m.eventsDropped, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Transition(from, to string) {
	if m != nil {
		m.transitions.WithLabelValues(from, to).Inc()
	}
}

func (m *Metrics) Payment(paymentType string) {
	if m != nil {
		m.payments.WithLabelValues(paymentType).Inc()
	}
}

func (m *Metrics) ReceiptIssued() {
	if m != nil {
		m.receiptsIssued.Inc()
	}
}

func (m *Metrics) IdempotentReplay() {
	if m != nil {
		m.idempotentReplays.Inc()
	}
}

func (m *Metrics) QuotaDenied(tier string) {
	if m != nil {
		m.quotaDenials.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m != nil {
		m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
