package monitoring

import (
	"net/http"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transform-engine metric series, grounded on the teacher's
// monitoring/prometheus.go package-level promauto registrations, retargeted
// from trading events to transform events.
var (
	transformOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transform_operations_total",
			Help: "Total transform operations by mode and status",
		},
		[]string{"mode", "table", "status"},
	)

	transformExecutionSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transform_operation_execution_seconds",
			Help:    "Transform operation execution time in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"mode", "table"},
	)

	transformThroughputRowsPerSec = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transform_throughput_rows_per_second",
			Help: "Most recent transform throughput in rows/sec",
		},
		[]string{"mode", "table"},
	)

	watermarkLagSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transform_watermark_lag_seconds",
			Help: "Seconds between now and the stored watermark",
		},
		[]string{"table", "time_column"},
	)

	qualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transform_quality_score",
			Help: "Latest data-quality profile score for a table",
		},
		[]string{"table"},
	)

	memoryUsageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transform_memory_usage_bytes",
			Help: "Process memory usage in bytes",
		},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transform_goroutines_count",
			Help: "Current number of goroutines",
		},
	)
)

// PrometheusBridge forwards MetricsCollector.Record calls to the matching
// package-level prometheus collector, so in-process point queries and the
// /metrics endpoint stay in sync.
type PrometheusBridge struct{}

// NewPrometheusBridge constructs a bridge. A nil *PrometheusBridge is safe:
// MetricsCollector checks for nil before dereferencing.
func NewPrometheusBridge() *PrometheusBridge { return &PrometheusBridge{} }

func (b *PrometheusBridge) observe(p MetricPoint) {
	switch p.Name {
	case "transform.operations.started", "transform.operations.completed":
		mode := p.Labels["op_type"]
		table := p.Labels["table"]
		status := p.Labels["status"]
		if status == "" {
			status = "started"
		}
		transformOperationsTotal.WithLabelValues(mode, table, status).Inc()
	case "transform.operations.execution_time":
		transformExecutionSeconds.WithLabelValues(p.Labels["op_type"], p.Labels["table"]).Observe(p.Value)
	case "transform.operations.throughput":
		transformThroughputRowsPerSec.WithLabelValues(p.Labels["op_type"], p.Labels["table"]).Set(p.Value)
	case "watermark.lag_seconds":
		watermarkLagSeconds.WithLabelValues(p.Labels["table"], p.Labels["time_column"]).Set(p.Value)
	case "quality.score":
		qualityScore.WithLabelValues(p.Labels["table"]).Set(p.Value)
	}
}

// SetMemoryUsage records the process memory gauge.
func SetMemoryUsage(bytes uint64) { memoryUsageBytes.Set(float64(bytes)) }

// SetGoroutineCount records the goroutine-count gauge.
func SetGoroutineCount(count int) { goroutineCount.Set(float64(count)) }

// MetricsHandler returns the HTTP handler serving the Prometheus /metrics endpoint.
func MetricsHandler() http.Handler { return promhttp.Handler() }

// sortedLabelKey builds a stable string key from a label map, used by the
// alert manager to key active alerts on "metric, operator, threshold,
// sorted labels" as spec.md §4.6 requires.
func sortedLabelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(';')
	}
	return b.String()
}
