package monitoring

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestNewRealTimeMonitorRegistersDefaultThresholds(t *testing.T) {
	mc := NewMetricsCollector(100, time.Hour)
	am := NewAlertManager(mc)
	var buf bytes.Buffer
	logger := NewLogger("test")
	logger.SetOutput(&buf)

	NewRealTimeMonitor(time.Second, mc, am, logger)

	if len(am.rules) != 3 {
		t.Fatalf("expected 3 default threshold rules, got %d", len(am.rules))
	}
}

func TestRealTimeMonitorStartStop(t *testing.T) {
	mc := NewMetricsCollector(100, time.Hour)
	am := NewAlertManager(mc)
	var buf bytes.Buffer
	logger := NewLogger("test")
	logger.SetOutput(&buf)

	m := NewRealTimeMonitor(10*time.Millisecond, mc, am, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	if len(mc.History("runtime.memory_percent", nil)) == 0 {
		t.Error("expected at least one collected runtime.memory_percent point")
	}
}
