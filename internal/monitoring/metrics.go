package monitoring

import (
	"sync"
	"time"
)

// MetricType classifies a MetricPoint (spec.md §3).
type MetricType string

const (
	MetricCounter   MetricType = "COUNTER"
	MetricGauge     MetricType = "GAUGE"
	MetricHistogram MetricType = "HISTOGRAM"
	MetricTimer     MetricType = "TIMER"
)

// MetricPoint is one recorded measurement.
type MetricPoint struct {
	Name      string
	Value     float64
	Type      MetricType
	Timestamp time.Time
	Labels    map[string]string
	Unit      string
}

func matchesLabels(point map[string]string, filter map[string]string) bool {
	for k, v := range filter {
		if point[k] != v {
			return false
		}
	}
	return true
}

// series is one named metric's bounded, time-ordered point buffer.
type series struct {
	points      []MetricPoint
	lastCleanup time.Time
}

// MetricsCollector is a concurrent map from series name to a bounded FIFO
// of points, with lazy retention-based eviction (spec.md §4.6).
type MetricsCollector struct {
	mu              sync.Mutex
	data            map[string]*series
	maxPerSeries    int
	retention       time.Duration
	cleanupInterval time.Duration
	prom            *PrometheusBridge
}

// NewMetricsCollector creates a collector with the given cap/retention.
func NewMetricsCollector(maxPerSeries int, retention time.Duration) *MetricsCollector {
	if maxPerSeries <= 0 {
		maxPerSeries = 10000
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &MetricsCollector{
		data:            make(map[string]*series),
		maxPerSeries:    maxPerSeries,
		retention:       retention,
		cleanupInterval: 300 * time.Second,
		prom:            NewPrometheusBridge(),
	}
}

// Record appends a point to its series, running lazy eviction if the
// cleanup interval has elapsed since the last sweep on that series.
func (m *MetricsCollector) Record(p MetricPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.data[p.Name]
	if !ok {
		s = &series{lastCleanup: p.Timestamp}
		m.data[p.Name] = s
	}

	s.points = append(s.points, p)
	if len(s.points) > m.maxPerSeries {
		s.points = s.points[len(s.points)-m.maxPerSeries:]
	}

	if p.Timestamp.Sub(s.lastCleanup) > m.cleanupInterval {
		m.evictLocked(s, p.Timestamp)
		s.lastCleanup = p.Timestamp
	}

	if m.prom != nil {
		m.prom.observe(p)
	}
}

func (m *MetricsCollector) evictLocked(s *series, now time.Time) {
	cutoff := now.Add(-m.retention)
	i := 0
	for i < len(s.points) && s.points[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.points = s.points[i:]
	}
}

// Latest returns the most recent point matching labels, if any.
func (m *MetricsCollector) Latest(name string, labels map[string]string) (MetricPoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[name]
	if !ok {
		return MetricPoint{}, false
	}
	for i := len(s.points) - 1; i >= 0; i-- {
		if matchesLabels(s.points[i].Labels, labels) {
			return s.points[i], true
		}
	}
	return MetricPoint{}, false
}

// History returns all points for name matching labels, oldest first.
func (m *MetricsCollector) History(name string, labels map[string]string) []MetricPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[name]
	if !ok {
		return nil
	}
	out := make([]MetricPoint, 0, len(s.points))
	for _, p := range s.points {
		if matchesLabels(p.Labels, labels) {
			out = append(out, p)
		}
	}
	return out
}

// SeriesNames returns the names of every series currently tracked, used by
// export to dump a full point-in-time snapshot.
func (m *MetricsCollector) SeriesNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.data))
	for name := range m.data {
		names = append(names, name)
	}
	return names
}

// Counter records a COUNTER point (convenience over Record).
func (m *MetricsCollector) Counter(name string, value float64, labels map[string]string) {
	m.Record(MetricPoint{Name: name, Value: value, Type: MetricCounter, Timestamp: time.Now(), Labels: labels})
}

// Gauge records a GAUGE point.
func (m *MetricsCollector) Gauge(name string, value float64, labels map[string]string) {
	m.Record(MetricPoint{Name: name, Value: value, Type: MetricGauge, Timestamp: time.Now(), Labels: labels})
}

// Timer records a TIMER point in milliseconds.
func (m *MetricsCollector) Timer(name string, ms float64, labels map[string]string) {
	m.Record(MetricPoint{Name: name, Value: ms, Type: MetricTimer, Timestamp: time.Now(), Labels: labels, Unit: "ms"})
}

var globalMetrics = NewMetricsCollector(10000, 24*time.Hour)

// GetMetricsCollector returns the global metrics collector instance.
func GetMetricsCollector() *MetricsCollector { return globalMetrics }

// SetGlobalMetricsCollector replaces the global metrics collector instance.
func SetGlobalMetricsCollector(m *MetricsCollector) { globalMetrics = m }
