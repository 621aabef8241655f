package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ObserveBooking(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), "clinic")

	c.ObserveBooking("booking", "ok")
	c.ObserveBooking("booking", "ok")
	c.ObserveBooking("booking", "slot_taken")

	if got := testutil.ToFloat64(c.BookingsTotal.WithLabelValues("booking", "ok")); got != 2 {
		t.Errorf("expected 2 ok bookings, got %v", got)
	}
	if got := testutil.ToFloat64(c.BookingsTotal.WithLabelValues("booking", "slot_taken")); got != 1 {
		t.Errorf("expected 1 slot_taken booking, got %v", got)
	}
}

func TestCollector_PaymentAmountOnlyOnSuccess(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry(), "clinic")

	c.ObservePayment("cash", "ok", 40)
	c.ObservePayment("cash", "already_paid", 40)

	if got := testutil.ToFloat64(c.PaymentAmount.WithLabelValues("cash")); got != 40 {
		t.Errorf("expected 40 settled, got %v", got)
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ObserveBooking("booking", "ok")
	c.ObserveTransition("check_in", "ok")
	c.ObservePayment("card", "ok", 1)
	c.ObserveLockWait(0.1)
	c.IncLockBypass()
}
