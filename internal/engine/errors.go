// internal/engine/errors.go
package engine

import (
	"errors"
	"fmt"
)

// Error taxonomy for the optimization engine. Argument and lifecycle
// violations surface immediately, before any state mutation; strategy
// failures are contained in the execution result instead of propagating.
var (
	ErrInvalidArgument = errors.New("engine: invalid argument")
	ErrDisposed        = errors.New("engine: disposed")
)

// invalidArg wraps ErrInvalidArgument with a description
func invalidArg(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// StrategyError reports a strategy's own logic failing. The engine converts
// it into a failed result so one misbehaving strategy cannot crash callers.
type StrategyError struct {
	Strategy  string
	Operation string
	Err       error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("engine: strategy %s failed on %s: %v", e.Strategy, e.Operation, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }
