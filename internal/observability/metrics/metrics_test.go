package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveRemoteCall("square", "create_booking", "200", 0.2)
	m.ObserveRemoteCall("square", "create_booking", "200", 0.1)
	m.ObserveHTTPRequest("GET", "/services", 200, 0.05)
	m.ObserveBooking("created")
	m.ObserveDeposit("USD", 2500)
	m.ObserveDeposit("USD", 0)
	m.ObserveVerification("check", true)

	if got := counterValue(t, m.remoteTotal, "square", "create_booking", "200"); got != 2 {
		t.Fatalf("expected 2 remote calls, got %v", got)
	}
	if got := counterValue(t, m.depositCents, "USD"); got != 2500 {
		t.Fatalf("expected 2500 cents, got %v", got)
	}
	if got := counterValue(t, m.verifyTotal, "check", "approved"); got != 1 {
		t.Fatalf("expected one approved check, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveRemoteCall("square", "op", "500", 0.1)
	m.ObserveHTTPRequest("GET", "/", 500, 0.1)
	m.ObserveBooking("cancelled")
	m.ObserveDeposit("USD", 100)
	m.ObserveVerification("start", false)
}
