// internal/strategy/noop.go
package strategy

import (
	"context"
	"time"
)

// Noop declines optimization for operations no other strategy claims
type Noop struct{}

// Name implements Strategy
func (n *Noop) Name() string { return "noop" }

// CanHandle accepts anything; Noop is the fallback
func (n *Noop) CanHandle(operation string) bool { return true }

// Execute declines optimization
func (n *Noop) Execute(ctx context.Context, sc *Context) (*Result, error) {
	start := time.Now()
	return &Result{
		Operation: sc.Operation,
		Success:   true,
		Reason:    "no strategy claims this operation",
		Duration:  time.Since(start),
	}, nil
}
