package monitoring

import (
	"testing"
	"time"
)

func TestMetricsCollectorRecordAndLatest(t *testing.T) {
	mc := NewMetricsCollector(10, time.Hour)
	mc.Gauge("quality.score", 0.9, map[string]string{"table": "orders"})
	mc.Gauge("quality.score", 0.95, map[string]string{"table": "orders"})

	p, ok := mc.Latest("quality.score", map[string]string{"table": "orders"})
	if !ok {
		t.Fatal("expected a latest point")
	}
	if p.Value != 0.95 {
		t.Errorf("expected latest value 0.95, got %v", p.Value)
	}
}

func TestMetricsCollectorEvictsBeyondCap(t *testing.T) {
	mc := NewMetricsCollector(3, time.Hour)
	for i := 0; i < 10; i++ {
		mc.Counter("transform.rows", 1, nil)
	}
	hist := mc.History("transform.rows", nil)
	if len(hist) > 3 {
		t.Errorf("expected at most 3 retained points, got %d", len(hist))
	}
}

func TestMetricsCollectorLatestFiltersByLabel(t *testing.T) {
	mc := NewMetricsCollector(10, time.Hour)
	mc.Gauge("watermark.lag_seconds", 5, map[string]string{"table": "a"})
	mc.Gauge("watermark.lag_seconds", 50, map[string]string{"table": "b"})

	p, ok := mc.Latest("watermark.lag_seconds", map[string]string{"table": "b"})
	if !ok || p.Value != 50 {
		t.Errorf("expected table b's point (50), got %+v ok=%v", p, ok)
	}
}

func TestMetricsCollectorSeriesNames(t *testing.T) {
	mc := NewMetricsCollector(10, time.Hour)
	mc.Counter("a", 1, nil)
	mc.Counter("b", 1, nil)

	names := mc.SeriesNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 series names, got %v", names)
	}
}
