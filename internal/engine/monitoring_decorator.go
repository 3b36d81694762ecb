// internal/engine/monitoring_decorator.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/strategy"
)

// Alert severities
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is the structured degradation notification sent to observers
type Alert struct {
	ID        string
	Type      string
	Severity  string
	Message   string
	Operation string
	Observed  time.Duration
	Baseline  time.Duration
	Timestamp time.Time
}

// Observer receives degradation alerts. Observer failures are caught and
// logged, never propagated to the optimization caller.
type Observer interface {
	Notify(alert Alert)
}

// MonitoringOptimizer keeps a bounded per-operation execution-time history
// and flags degradation when a sample exceeds a multiple of the rolling
// average.
type MonitoringOptimizer struct {
	inner       Optimizer
	maxHistory  int
	minHistory  int
	degradeMult float64
	collectors  *metrics.Collectors
	logger      *zap.Logger

	mu        sync.Mutex
	history   map[string][]time.Duration
	observers []Observer
}

// WithMonitoring wraps inner with execution-time degradation detection
func WithMonitoring(inner Optimizer, collectors *metrics.Collectors, logger *zap.Logger) *MonitoringOptimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonitoringOptimizer{
		inner:       inner,
		maxHistory:  100,
		minHistory:  5,
		degradeMult: 2.0,
		collectors:  collectors,
		logger:      logger,
		history:     make(map[string][]time.Duration),
	}
}

// Subscribe registers an observer for degradation alerts
func (m *MonitoringOptimizer) Subscribe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// Optimize implements Optimizer
func (m *MonitoringOptimizer) Optimize(ctx context.Context, sc *strategy.Context) (*strategy.Result, error) {
	if sc == nil {
		return nil, invalidArg("optimization context is required")
	}

	start := time.Now()
	res, err := m.inner.Optimize(ctx, sc)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	m.observe(sc.Operation, elapsed)
	return res, nil
}

// observe checks the new sample against the rolling average before
// appending it, so a single spike triggers exactly one alert
func (m *MonitoringOptimizer) observe(operation string, elapsed time.Duration) {
	m.mu.Lock()

	hist := m.history[operation]
	var alert *Alert
	if len(hist) >= m.minHistory {
		var sum time.Duration
		for _, d := range hist {
			sum += d
		}
		avg := sum / time.Duration(len(hist))
		if avg > 0 && float64(elapsed) > m.degradeMult*float64(avg) {
			alert = &Alert{
				ID:        uuid.New().String(),
				Type:      "performance_degradation",
				Severity:  SeverityWarning,
				Message:   "execution time exceeds rolling average",
				Operation: operation,
				Observed:  elapsed,
				Baseline:  avg,
				Timestamp: time.Now(),
			}
			if float64(elapsed) > 2*m.degradeMult*float64(avg) {
				alert.Severity = SeverityCritical
			}
		}
	}

	hist = append(hist, elapsed)
	if len(hist) > m.maxHistory {
		hist = hist[1:]
	}
	m.history[operation] = hist

	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	if alert != nil {
		if m.collectors != nil {
			m.collectors.Degradations.Inc()
		}
		m.notify(observers, *alert)
	}
}

// notify delivers the alert to each observer, containing panics
func (m *MonitoringOptimizer) notify(observers []Observer, alert Alert) {
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("alert observer panicked",
						zap.String("operation", alert.Operation),
						zap.Any("panic", r))
				}
			}()
			o.Notify(alert)
		}()
	}
}

// History returns a copy of one operation's execution-time history
func (m *MonitoringOptimizer) History(operation string) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	hist := m.history[operation]
	out := make([]time.Duration, len(hist))
	copy(out, hist)
	return out
}
