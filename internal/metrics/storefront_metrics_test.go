package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	var total float64
	for m := range ch {
		var out dto.Metric
		if err := m.Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		switch {
		case out.Counter != nil:
			total += out.Counter.GetValue()
		case out.Gauge != nil:
			total += out.Gauge.GetValue()
		}
	}
	return total
}

func TestNewStorefrontMetrics_Isolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefrontMetricsWithRegisterer(reg)

	m.RecordCartItemAdded()
	m.RecordCartItemAdded()
	m.RecordCheckout()
	m.RecordOrderPlaced()
	m.SetActiveOrders(3)

	if got := counterValue(t, m.cartItemsAdded); got != 2 {
		t.Errorf("expected 2 cart adds, got %v", got)
	}
	if got := counterValue(t, m.cartCheckouts); got != 1 {
		t.Errorf("expected 1 checkout, got %v", got)
	}
	if got := counterValue(t, m.ordersPlaced); got != 1 {
		t.Errorf("expected 1 order placed, got %v", got)
	}
	if got := counterValue(t, m.activeOrders); got != 3 {
		t.Errorf("expected 3 active orders, got %v", got)
	}
}

func TestStorefrontMetrics_LabelledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorefrontMetricsWithRegisterer(reg)

	m.RecordStatusChange("shipped")
	m.RecordStatusChange("delivered")
	m.RecordToast("error")
	m.RecordFetchFailure("GET")

	if got := counterValue(t, m.orderStatusChanges.WithLabelValues("shipped")); got != 1 {
		t.Errorf("expected 1 shipped transition, got %v", got)
	}
	if got := counterValue(t, m.orderStatusChanges); got != 2 {
		t.Errorf("expected 2 transitions total, got %v", got)
	}
	if got := counterValue(t, m.toastsShown.WithLabelValues("error")); got != 1 {
		t.Errorf("expected 1 error toast, got %v", got)
	}
	if got := counterValue(t, m.fetchFailures.WithLabelValues("GET")); got != 1 {
		t.Errorf("expected 1 GET failure, got %v", got)
	}
}

func TestNewStorefrontMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewStorefrontMetricsWithRegisterer(reg)
	second := NewStorefrontMetricsWithRegisterer(reg)

	first.RecordOrderPlaced()
	second.RecordOrderPlaced()

	if got := counterValue(t, first.ordersPlaced); got != 2 {
		t.Errorf("expected shared counter value 2, got %v", got)
	}
}

func TestStorefrontMetrics_NilReceiver(t *testing.T) {
	var m *StorefrontMetrics

	m.RecordCartItemAdded()
	m.RecordCheckout()
	m.RecordOrderPlaced()
	m.RecordStatusChange("shipped")
	m.RecordToast("info")
	m.RecordFetchFailure("PUT")
	m.SetActiveOrders(1)
}
