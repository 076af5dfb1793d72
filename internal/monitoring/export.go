package monitoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ExportSnapshot is the on-disk shape written by Export (spec.md §6.3
// export_observability_data): every tracked series, the active alert set,
// and recent completed spans, all as of the export instant.
type ExportSnapshot struct {
	ExportedAt time.Time              `json:"exported_at"`
	Metrics    map[string][]MetricPoint `json:"metrics"`
	Alerts     []Alert                `json:"alerts"`
	Spans      []*Span                `json:"spans"`
}

// Export gathers a full snapshot from the observability manager's backing
// collectors. metrics/alerts/tracer are taken as explicit arguments rather
// than fields on ObservabilityManager since the manager itself only wires
// the tracer and logger (spec.md §4.6); callers hold the rest.
func Export(metrics *MetricsCollector, alerts *AlertManager, tracer *Tracer) ExportSnapshot {
	names := metrics.SeriesNames()
	sort.Strings(names)

	out := make(map[string][]MetricPoint, len(names))
	for _, name := range names {
		out[name] = metrics.History(name, nil)
	}

	snap := ExportSnapshot{ExportedAt: time.Now(), Metrics: out}
	if alerts != nil {
		snap.Alerts = alerts.GetActiveAlerts()
	}
	if tracer != nil {
		snap.Spans = tracer.CompletedSpans()
	}
	return snap
}

// WriteExportFile serializes the snapshot to dir/metrics_YYYYMMDD_HHMMSS.json
// (spec.md §6.3) and returns the path written.
func WriteExportFile(dir string, snap ExportSnapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create dir: %w", err)
	}
	name := fmt.Sprintf("metrics_%s.json", snap.ExportedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export: marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("export: write file: %w", err)
	}
	return path, nil
}
