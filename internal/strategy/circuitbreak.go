// internal/strategy/circuitbreak.go
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/breaker"
)

// CircuitBreaking surfaces breaker state as a recommendation input.
// Threshold decisions stay inside the adaptive breaker itself.
type CircuitBreaking struct {
	registry *breaker.Registry
	logger   *zap.Logger
}

// NewCircuitBreaking creates the circuit-breaking strategy
func NewCircuitBreaking(registry *breaker.Registry, logger *zap.Logger) *CircuitBreaking {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaking{registry: registry, logger: logger}
}

// Name implements Strategy
func (c *CircuitBreaking) Name() string { return "circuit_breaking" }

// CanHandle implements Strategy
func (c *CircuitBreaking) CanHandle(operation string) bool { return operation == OpCircuitBreaking }

// Execute implements Strategy
func (c *CircuitBreaking) Execute(ctx context.Context, sc *Context) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Operation: sc.Operation, Success: true}
	defer func() { result.Duration = time.Since(start) }()

	b := c.registry.Get(sc.RequestType)
	m := b.Metrics()

	switch m.State {
	case breaker.StateOpen:
		r := NewRecommendation(KindCircuitBreaking, 0.95)
		r.Risk = RiskHigh
		r.Priority = 3
		r.Parameters["breaker_state"] = m.State.String()
		r.Parameters["consecutive_failures"] = m.ConsecutiveFailures
		r.Parameters["availability"] = m.Availability()
		result.Recommendation = r
	case breaker.StateHalfOpen:
		r := NewRecommendation(KindCircuitBreaking, 0.6)
		r.Risk = RiskMedium
		r.Priority = 2
		r.Parameters["breaker_state"] = m.State.String()
		result.Recommendation = r
	default:
		if m.FailureRate() > 0.2 && m.TotalCalls >= 10 {
			r := NewRecommendation(KindCircuitBreaking, m.FailureRate())
			r.Risk = RiskMedium
			r.Priority = 2
			r.Parameters["breaker_state"] = m.State.String()
			r.Parameters["failure_rate"] = m.FailureRate()
			result.Recommendation = r
		} else {
			result.Reason = "dependency healthy, no isolation needed"
		}
	}
	return result, nil
}
