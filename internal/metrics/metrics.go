package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	BookingsTotal    *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	PaymentsTotal    *prometheus.CounterVec
	PaymentAmount    *prometheus.CounterVec
	LockWaitSeconds  prometheus.Histogram
	LockBypassTotal  prometheus.Counter
}

// NewCollector registers every metric on reg. Tests pass a fresh prometheus.NewRegistry().
func NewCollector(reg prometheus.Registerer, serviceName string) *Collector {
	f := promauto.With(reg)

	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking, walk-in, and reschedule attempts by kind and outcome.",
		}, []string{"kind", "outcome"}),

		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by event and outcome.",
		}, []string{"event", "outcome"}),

		PaymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "ledger",
			Name:      "payments_total",
			Help:      "Settling payments by method and outcome.",
		}, []string{"method", "outcome"}),

		PaymentAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "ledger",
			Name:      "payment_amount_total",
			Help:      "Sum of settled payment amounts by method.",
		}, []string{"method"}),

		LockWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent acquiring a slot lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		}),

		LockBypassTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "lock",
			Name:      "bypass_total",
			Help:      "Commits that ran without a slot lock because Redis was unavailable. Alert if rising.",
		}),
	}
}

func (c *Collector) ObserveBooking(kind, outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) ObserveTransition(event, outcome string) {
	if c == nil {
		return
	}
	c.TransitionsTotal.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) ObservePayment(method, outcome string, amount float64) {
	if c == nil {
		return
	}
	c.PaymentsTotal.WithLabelValues(method, outcome).Inc()
	if outcome == "ok" {
		c.PaymentAmount.WithLabelValues(method).Add(amount)
	}
}

func (c *Collector) ObserveLockWait(seconds float64) {
	if c == nil {
		return
	}
	c.LockWaitSeconds.Observe(seconds)
}

func (c *Collector) IncLockBypass() {
	if c == nil {
		return
	}
	c.LockBypassTotal.Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
