package monitoring

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExportSnapshotIncludesMetricsAndAlerts(t *testing.T) {
	mc := NewMetricsCollector(10, time.Hour)
	mc.Gauge("quality.score", 0.8, map[string]string{"table": "orders"})

	am := NewAlertManager(mc)
	tr := NewTracer("test")

	snap := Export(mc, am, tr)
	if len(snap.Metrics["quality.score"]) != 1 {
		t.Fatalf("expected 1 point for quality.score, got %d", len(snap.Metrics["quality.score"]))
	}
	if snap.Alerts == nil && len(am.GetActiveAlerts()) > 0 {
		t.Error("expected alerts to be populated")
	}
}

func TestWriteExportFileWritesValidJSON(t *testing.T) {
	mc := NewMetricsCollector(10, time.Hour)
	mc.Counter("transform.operations.completed", 1, nil)
	snap := Export(mc, nil, nil)

	dir := t.TempDir()
	path, err := WriteExportFile(dir, snap)
	if err != nil {
		t.Fatalf("WriteExportFile: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("expected file under %q, got %q", dir, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var roundTrip ExportSnapshot
	if err := json.Unmarshal(data, &roundTrip); err != nil {
		t.Fatalf("unmarshal exported file: %v", err)
	}
	if len(roundTrip.Metrics["transform.operations.completed"]) != 1 {
		t.Errorf("expected round-tripped metric point, got %+v", roundTrip.Metrics)
	}
}
