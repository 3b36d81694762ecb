// internal/engine/optimizer.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/strategy"
)

// Optimizer is the engine template contract. The core engine and every
// decorator satisfy it, so decorators compose by wrapping an injected inner
// Optimizer.
type Optimizer interface {
	Optimize(ctx context.Context, sc *strategy.Context) (*strategy.Result, error)
}

// Core resolves the single strategy claiming the operation and executes it,
// recording execution time and success. Strategy failures and panics are
// reported as failed results, never propagated.
type Core struct {
	registry *strategy.Registry
	logger   *zap.Logger
}

// NewCore creates the core engine over a strategy registry
func NewCore(registry *strategy.Registry, logger *zap.Logger) *Core {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{registry: registry, logger: logger}
}

// Optimize implements Optimizer
func (c *Core) Optimize(ctx context.Context, sc *strategy.Context) (result *strategy.Result, err error) {
	if sc == nil || sc.Operation == "" {
		return nil, invalidArg("optimization context with operation is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := c.registry.Resolve(sc.Operation)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("strategy panicked",
				zap.String("strategy", st.Name()),
				zap.String("operation", sc.Operation),
				zap.Any("panic", r))
			result = &strategy.Result{
				Operation: sc.Operation,
				Success:   false,
				Error:     fmt.Sprintf("strategy %s panicked: %v", st.Name(), r),
				Duration:  time.Since(start),
			}
			err = nil
		}
	}()

	res, execErr := st.Execute(ctx, sc)
	if execErr != nil {
		// cancellation propagates; strategy logic failures are contained
		if ctx.Err() != nil {
			return nil, execErr
		}
		sErr := &StrategyError{Strategy: st.Name(), Operation: sc.Operation, Err: execErr}
		c.logger.Warn("strategy execution failed", zap.Error(sErr))
		return &strategy.Result{
			Operation: sc.Operation,
			Success:   false,
			Error:     sErr.Error(),
			Duration:  time.Since(start),
		}, nil
	}

	res.Duration = time.Since(start)
	return res, nil
}
