package metrics

import (
	"testing"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestIncCounterAccumulates(t *testing.T) {
	r := New(nil)
	r.IncCounter("test_counter_total", map[string]string{"peer": "a"})
	r.IncCounter("test_counter_total", map[string]string{"peer": "a"})
	r.IncCounter("test_counter_total", map[string]string{"peer": "b"})

	metrics, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var found *io_prometheus_client.MetricFamily
	for _, mf := range metrics {
		if mf.GetName() == "test_counter_total" {
			found = mf
		}
	}
	if found == nil {
		t.Fatalf("expected test_counter_total registered")
	}
	if len(found.Metric) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(found.Metric))
	}
}

func TestSetGaugeOverwrites(t *testing.T) {
	r := New(nil)
	r.SetGauge("test_gauge", nil, 1)
	r.SetGauge("test_gauge", nil, 2)

	metrics, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == "test_gauge" {
			if got := mf.Metric[0].GetGauge().GetValue(); got != 2 {
				t.Fatalf("expected gauge overwritten to 2, got %v", got)
			}
			return
		}
	}
	t.Fatalf("expected test_gauge registered")
}
