package monitoring

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/sqlflowx/transformengine/internal/model"
)

// RealTimeMonitor periodically collects process metrics and runs threshold
// checks — grounded on the teacher's RuntimeMetricsCollector
// (monitoring/runtime.go), generalized from OS CPU/mem scraping (unavailable
// without a platform-specific dependency in the pack) to Go runtime stats.
type RealTimeMonitor struct {
	interval time.Duration
	metrics  *MetricsCollector
	alerts   *AlertManager
	logger   *Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	osUnavailableLogged bool
}

// NewRealTimeMonitor wires a monitor and pre-registers the default
// threshold rules (spec.md §4.6: memory thresholds; the goroutine count is
// recorded as a gauge without a default rule).
func NewRealTimeMonitor(interval time.Duration, metrics *MetricsCollector, alerts *AlertManager, logger *Logger) *RealTimeMonitor {
	m := &RealTimeMonitor{interval: interval, metrics: metrics, alerts: alerts, logger: logger, stop: make(chan struct{})}
	m.registerDefaultThresholds()
	return m
}

func (m *RealTimeMonitor) registerDefaultThresholds() {
	m.alerts.RegisterRule(ThresholdRule{
		MetricName: "runtime.memory_percent", Operator: OpGT, ThresholdValue: 80,
		Severity: model.SeverityMedium, MessageTemplate: "memory usage %.1f%% exceeds %.1f%%", CooldownSeconds: 300,
	})
	m.alerts.RegisterRule(ThresholdRule{
		MetricName: "runtime.memory_percent", Operator: OpGT, ThresholdValue: 85,
		Severity: model.SeverityHigh, MessageTemplate: "memory usage %.1f%% exceeds %.1f%% (high)", CooldownSeconds: 300,
	})
	m.alerts.RegisterRule(ThresholdRule{
		MetricName: "runtime.available_memory_gb", Operator: OpLT, ThresholdValue: 1,
		Severity: model.SeverityCritical, MessageTemplate: "available memory %.2fGB below %.2fGB", CooldownSeconds: 300,
	})
}

// Start launches the background collection loop. If the runtime stats
// interface becomes unavailable at any point, collection self-disables and
// logs a warning once (spec.md §4.6).
func (m *RealTimeMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop cooperatively stops the loop and waits for it to exit.
func (m *RealTimeMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *RealTimeMonitor) loop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
			m.alerts.CheckThresholds(ctx)
		}
	}
}

func (m *RealTimeMonitor) collect() {
	if m.osUnavailableLogged {
		return
	}
	defer func() {
		if r := recover(); r != nil && !m.osUnavailableLogged {
			m.osUnavailableLogged = true
			m.logger.Warn("runtime metrics collection disabled: collector panicked", map[string]any{"panic": r})
		}
	}()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usedMB := float64(ms.Alloc) / 1024 / 1024
	sysMB := float64(ms.Sys) / 1024 / 1024
	percent := 0.0
	if sysMB > 0 {
		percent = usedMB / sysMB * 100
	}
	availableGB := (sysMB - usedMB) / 1024

	SetMemoryUsage(ms.Alloc)
	SetGoroutineCount(runtime.NumGoroutine())

	m.metrics.Gauge("runtime.memory_percent", percent, nil)
	m.metrics.Gauge("runtime.available_memory_gb", availableGB, nil)
	m.metrics.Gauge("runtime.goroutines", float64(runtime.NumGoroutine()), nil)
}
