package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking flows and the
// remote APIs they depend on.
type BookingMetrics struct {
	remoteTotal   *prometheus.CounterVec
	remoteLatency *prometheus.HistogramVec
	httpLatency   *prometheus.HistogramVec
	bookingsTotal *prometheus.CounterVec
	depositCents  *prometheus.CounterVec
	verifyTotal   *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		remoteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Total calls to Square/Twilio APIs",
		}, []string{"api", "operation", "status"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookings",
			Subsystem: "remote",
			Name:      "call_latency_seconds",
			Help:      "Latency of Square/Twilio API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api", "operation"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookings",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of inbound page requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Subsystem: "lifecycle",
			Name:      "total",
			Help:      "Bookings created, rescheduled and cancelled",
		}, []string{"action"}),
		depositCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Subsystem: "payments",
			Name:      "deposit_cents_total",
			Help:      "Sum of deposits charged, in minor currency units",
		}, []string{"currency"}),
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookings",
			Subsystem: "verify",
			Name:      "total",
			Help:      "Phone verifications started and checked",
		}, []string{"kind", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.remoteTotal, m.remoteLatency, m.httpLatency, m.bookingsTotal, m.depositCents, m.verifyTotal)
	return m
}

// ObserveRemoteCall records one outbound API call. status is the HTTP status
// code, or "error" when no response was received.
func (m *BookingMetrics) ObserveRemoteCall(api, operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.remoteTotal.WithLabelValues(api, operation, status).Inc()
	m.remoteLatency.WithLabelValues(api, operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveHTTPRequest(method, route string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.httpLatency.WithLabelValues(method, route, strconv.Itoa(code)).Observe(seconds)
}

func (m *BookingMetrics) ObserveBooking(action string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(action).Inc()
}

func (m *BookingMetrics) ObserveDeposit(currency string, cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.depositCents.WithLabelValues(currency).Add(float64(cents))
}

func (m *BookingMetrics) ObserveVerification(kind string, approved bool) {
	if m == nil {
		return
	}
	outcome := "pending"
	if approved {
		outcome = "approved"
	}
	m.verifyTotal.WithLabelValues(kind, outcome).Inc()
}
