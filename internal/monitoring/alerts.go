package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sqlflowx/transformengine/internal/model"
)

// Operator is the comparison used by a ThresholdRule.
type Operator string

const (
	OpGT  Operator = "gt"
	OpLT  Operator = "lt"
	OpGTE Operator = "gte"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNE  Operator = "ne"
)

func evaluate(op Operator, value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpLT:
		return value < threshold
	case OpGTE:
		return value >= threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		return value == threshold
	case OpNE:
		return value != threshold
	default:
		return false
	}
}

// ThresholdRule defines one alerting condition (spec.md §3).
type ThresholdRule struct {
	MetricName      string
	ThresholdValue  float64
	Operator        Operator
	Severity        model.Severity
	MessageTemplate string
	CooldownSeconds int
	LabelsFilter    map[string]string
}

// Alert is a triggered or resolved alert instance (spec.md §3).
type Alert struct {
	Name            string
	Message         string
	Severity        model.Severity
	MetricName      string
	CurrentValue    float64
	ThresholdValue  float64
	Labels          map[string]string
	FirstTriggeredAt time.Time
	Resolved        bool
	ResolvedAt      *time.Time
}

// AlertCallback is invoked whenever a new alert fires.
type AlertCallback func(Alert)

// AlertManager evaluates ThresholdRules against MetricsCollector values,
// tracking active alerts with cooldown and history (spec.md §4.6).
type AlertManager struct {
	mu        sync.Mutex
	rules     []ThresholdRule
	active    map[string]*Alert
	cooldowns map[string]time.Time
	history   []Alert
	maxHistory int
	callbacks []AlertCallback
	metrics   *MetricsCollector
	publisher AlertPublisher
}

// AlertPublisher fans alerts out to an external channel (e.g. Redis
// pub/sub). Implementations must not block indefinitely.
type AlertPublisher interface {
	Publish(ctx context.Context, channel string, alert Alert) error
}

// NewAlertManager creates an alert manager reading from metrics.
func NewAlertManager(metrics *MetricsCollector) *AlertManager {
	return &AlertManager{
		rules:      make([]ThresholdRule, 0),
		active:     make(map[string]*Alert),
		cooldowns:  make(map[string]time.Time),
		maxHistory: 1000,
		metrics:    metrics,
	}
}

// SetPublisher attaches an out-of-process fan-out sink (optional).
func (am *AlertManager) SetPublisher(p AlertPublisher) { am.publisher = p }

// RegisterRule adds a threshold rule.
func (am *AlertManager) RegisterRule(rule ThresholdRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// RegisterCallback registers a callback invoked on every new alert trigger.
func (am *AlertManager) RegisterCallback(cb AlertCallback) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.callbacks = append(am.callbacks, cb)
}

func alertKey(rule ThresholdRule) string {
	return fmt.Sprintf("%s|%s|%v|%s", rule.MetricName, rule.Operator, rule.ThresholdValue, sortedLabelKey(rule.LabelsFilter))
}

// CheckThresholds evaluates every registered rule against the latest metric
// value, triggering, resolving, and cooling down alerts per spec.md §4.6.
func (am *AlertManager) CheckThresholds(ctx context.Context) []Alert {
	am.mu.Lock()
	rules := make([]ThresholdRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.Unlock()

	var triggered []Alert

	for _, rule := range rules {
		point, ok := am.metrics.Latest(rule.MetricName, rule.LabelsFilter)
		if !ok {
			continue
		}
		key := alertKey(rule)
		breached := evaluate(rule.Operator, point.Value, rule.ThresholdValue)

		am.mu.Lock()
		_, isActive := am.active[key]

		if breached {
			if last, inCooldown := am.cooldowns[key]; inCooldown &&
				time.Now().Before(last.Add(time.Duration(rule.CooldownSeconds)*time.Second)) {
				am.mu.Unlock()
				continue
			}

			alert := Alert{
				Name:             rule.MetricName,
				Message:          fmt.Sprintf(rule.MessageTemplate, point.Value, rule.ThresholdValue),
				Severity:         rule.Severity,
				MetricName:       rule.MetricName,
				CurrentValue:     point.Value,
				ThresholdValue:   rule.ThresholdValue,
				Labels:           rule.LabelsFilter,
				FirstTriggeredAt: time.Now(),
			}
			am.active[key] = &alert
			am.history = append(am.history, alert)
			if len(am.history) > am.maxHistory {
				am.history = am.history[1:]
			}
			am.cooldowns[key] = time.Now()
			callbacks := append([]AlertCallback{}, am.callbacks...)
			am.mu.Unlock()

			triggered = append(triggered, alert)
			for _, cb := range callbacks {
				cb(alert)
			}
			if am.publisher != nil {
				_ = am.publisher.Publish(ctx, "transform.alerts", alert)
			}
			GetLogger().Warn(alert.Message, map[string]any{"alert_name": alert.Name, "severity": alert.Severity})
			continue
		}

		if isActive {
			now := time.Now()
			am.active[key].Resolved = true
			am.active[key].ResolvedAt = &now
			delete(am.active, key)
		}
		am.mu.Unlock()
	}

	return triggered
}

// GetActiveAlerts returns the currently active (unresolved) alerts.
func (am *AlertManager) GetActiveAlerts() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]Alert, 0, len(am.active))
	for _, a := range am.active {
		out = append(out, *a)
	}
	return out
}

// History returns a snapshot of the alert history buffer.
func (am *AlertManager) History() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()
	out := make([]Alert, len(am.history))
	copy(out, am.history)
	return out
}

var globalAlertManager = NewAlertManager(GetMetricsCollector())

// GetAlertManager returns the global alert manager instance.
func GetAlertManager() *AlertManager { return globalAlertManager }

// SetGlobalAlertManager replaces the global alert manager instance.
func SetGlobalAlertManager(am *AlertManager) { globalAlertManager = am }

// alertJSON is only used to keep Publish implementations honest about shape;
// the redis-backed RedisAlertPublisher (publisher.go) marshals through this
// type via Alert.marshal.
type alertJSON struct {
	Name       string         `json:"name"`
	Message    string         `json:"message"`
	Severity   model.Severity `json:"severity"`
	MetricName string         `json:"metric_name"`
}

func (a Alert) marshal() ([]byte, error) {
	return json.Marshal(alertJSON{Name: a.Name, Message: a.Message, Severity: a.Severity, MetricName: a.MetricName})
}
