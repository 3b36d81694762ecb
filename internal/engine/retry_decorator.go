// internal/engine/retry_decorator.go
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/strategy"
)

// RetryOptimizer re-invokes the inner engine on failure, up to maxRetries
// additional attempts, with exponential backoff between attempts.
// Cancellation is honored at each attempt boundary.
type RetryOptimizer struct {
	inner      Optimizer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	collectors *metrics.Collectors
}

// WithRetry wraps inner with bounded retries
func WithRetry(inner Optimizer, maxRetries int, baseDelay time.Duration, collectors *metrics.Collectors) *RetryOptimizer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 10 * time.Millisecond
	}
	return &RetryOptimizer{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   time.Second,
		collectors: collectors,
	}
}

// Optimize implements Optimizer
func (r *RetryOptimizer) Optimize(ctx context.Context, sc *strategy.Context) (*strategy.Result, error) {
	attempts := r.maxRetries + 1
	var lastMsg string

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if attempt > 0 {
			delay := time.Duration(math.Min(
				float64(r.baseDelay)*math.Pow(2, float64(attempt-1)),
				float64(r.maxDelay),
			))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if r.collectors != nil {
			r.collectors.RetryAttempts.Inc()
		}

		res, err := r.inner.Optimize(ctx, sc)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastMsg = err.Error()
			continue
		}
		if res.Success {
			return res, nil
		}
		lastMsg = res.Error
		if lastMsg == "" {
			lastMsg = res.Reason
		}
	}

	op := ""
	if sc != nil {
		op = sc.Operation
	}
	return &strategy.Result{
		Operation: op,
		Success:   false,
		Error:     fmt.Sprintf("Failed after %d attempts: %s", attempts, lastMsg),
	}, nil
}
