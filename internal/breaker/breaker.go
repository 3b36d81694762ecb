// internal/breaker/breaker.go
package breaker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reqtune/reqtune/internal/health"
)

// State of the breaker state machine
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrOpen rejects a call without invoking the protected operation
	ErrOpen = errors.New("breaker: circuit is open")
	// ErrDisposed rejects calls after Close
	ErrDisposed = errors.New("breaker: disposed")
)

// Config tunes one breaker instance
type Config struct {
	BaseThreshold     int           `yaml:"base_threshold"`
	LoadSensitivity   float64       `yaml:"load_sensitivity"`
	SuccessThreshold  int           `yaml:"success_threshold"`
	BreakDuration     time.Duration `yaml:"break_duration"`
	MaxHalfOpenProbes int           `yaml:"max_half_open_probes"`
}

// DefaultConfig returns sane production defaults
func DefaultConfig() Config {
	return Config{
		BaseThreshold:     5,
		LoadSensitivity:   0.5,
		SuccessThreshold:  3,
		BreakDuration:     30 * time.Second,
		MaxHalfOpenProbes: 2,
	}
}

// Validate rejects malformed configuration
func (c Config) Validate() error {
	if c.BaseThreshold <= 0 {
		return fmt.Errorf("breaker: base threshold must be positive, got %d", c.BaseThreshold)
	}
	if c.LoadSensitivity < 0 || c.LoadSensitivity > 1 {
		return fmt.Errorf("breaker: load sensitivity %v outside [0,1]", c.LoadSensitivity)
	}
	if c.SuccessThreshold <= 0 {
		return fmt.Errorf("breaker: success threshold must be positive, got %d", c.SuccessThreshold)
	}
	if c.BreakDuration <= 0 {
		return errors.New("breaker: break duration must be positive")
	}
	if c.MaxHalfOpenProbes <= 0 {
		return errors.New("breaker: max half-open probes must be positive")
	}
	return nil
}

// Metrics is a read-only snapshot of a breaker's call counters
type Metrics struct {
	TotalCalls          int64
	SuccessfulCalls     int64
	FailedCalls         int64
	RejectedCalls       int64
	ConsecutiveFailures int64
	State               State
}

// Availability is successfulCalls / max(1, totalCalls - rejectedCalls)
func (m Metrics) Availability() float64 {
	denom := m.TotalCalls - m.RejectedCalls
	if denom < 1 {
		denom = 1
	}
	return float64(m.SuccessfulCalls) / float64(denom)
}

// FailureRate is failedCalls / max(1, totalCalls)
func (m Metrics) FailureRate() float64 {
	denom := m.TotalCalls
	if denom < 1 {
		denom = 1
	}
	return float64(m.FailedCalls) / float64(denom)
}

// Breaker is a per-dependency failure-isolation state machine whose open
// threshold adapts to observed availability and failure rate. All state
// transitions are serialized under the instance mutex; there is no global
// lock across breakers.
type Breaker struct {
	name   string
	cfg    Config
	logger *zap.Logger

	mu              sync.Mutex
	state           State
	openedAt        time.Time
	halfOpenProbes  int
	recentSuccesses int
	metrics         Metrics
	disposed        bool

	probeLimiter *rate.Limiter
	now          func() time.Time
}

// New creates a breaker for one isolated dependency
func New(name string, cfg Config, logger *zap.Logger) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		// pace half-open probes so a burst cannot consume the probe budget
		// inside one scheduler tick
		probeLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), cfg.MaxHalfOpenProbes),
		now:          time.Now,
	}, nil
}

// Name returns the dependency key this breaker guards
func (b *Breaker) Name() string { return b.name }

// adjustedThreshold shrinks the base threshold as availability drops or the
// failure rate climbs:
//
//	max(1, base * (1 - ls*(1-availability)) * (1 - ls*failureRate))
func (b *Breaker) adjustedThreshold() float64 {
	availability := b.metrics.Availability()
	failureRate := b.metrics.FailureRate()
	ls := b.cfg.LoadSensitivity

	adjusted := float64(b.cfg.BaseThreshold) *
		(1 - ls*(1-availability)) *
		(1 - ls*failureRate)
	return math.Max(1, adjusted)
}

// shouldOpen reports whether the consecutive-failure count has reached the
// adjusted threshold
func (b *Breaker) shouldOpen() bool {
	return float64(b.metrics.ConsecutiveFailures) >= b.adjustedThreshold()
}

// Execute runs op under the breaker's protection. While Open it fails with
// ErrOpen without invoking op; in HalfOpen at most MaxHalfOpenProbes
// concurrent probes are admitted.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(ctx); err != nil {
		return err
	}

	err := op(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// automatic Open -> HalfOpen after the break duration
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.BreakDuration {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateOpen:
		b.metrics.RejectedCalls++
		return ErrOpen
	case StateHalfOpen:
		if b.halfOpenProbes >= b.cfg.MaxHalfOpenProbes || !b.probeLimiter.Allow() {
			b.metrics.RejectedCalls++
			return ErrOpen
		}
		b.halfOpenProbes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}

	b.metrics.TotalCalls++
	if b.state == StateHalfOpen && b.halfOpenProbes > 0 {
		b.halfOpenProbes--
	}

	if err != nil {
		b.metrics.FailedCalls++
		b.metrics.ConsecutiveFailures++

		switch b.state {
		case StateHalfOpen:
			b.openCircuit()
		case StateClosed:
			if b.shouldOpen() {
				b.openCircuit()
			}
		}
		return
	}

	b.metrics.SuccessfulCalls++
	b.metrics.ConsecutiveFailures = 0

	if b.state == StateHalfOpen {
		b.recentSuccesses++
		required := b.cfg.SuccessThreshold - 1
		if required < 1 {
			required = 1
		}
		if b.recentSuccesses >= required {
			b.transition(StateClosed)
			b.recentSuccesses = 0
			b.halfOpenProbes = 0
		}
	}
}

func (b *Breaker) openCircuit() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.recentSuccesses = 0
	b.halfOpenProbes = 0
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	b.logger.Info("breaker state change",
		zap.String("dependency", b.name),
		zap.String("from", b.state.String()),
		zap.String("to", to.String()))
	b.state = to
	b.metrics.State = to
}

// Reset forces the breaker Closed and zeroes all counters
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.metrics = Metrics{State: StateClosed}
	b.recentSuccesses = 0
	b.halfOpenProbes = 0
}

// Isolate forces the breaker Open regardless of metrics, for operational
// control
func (b *Breaker) Isolate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openCircuit()
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot of the call counters
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.metrics
	m.State = b.state
	return m
}

// Close disposes the breaker; all further calls fail with ErrDisposed
func (b *Breaker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	return nil
}

// CheckHealth reports breaker health: open is unhealthy, half-open degraded
func (b *Breaker) CheckHealth(ctx context.Context) health.Result {
	start := time.Now()
	result := health.Healthy()

	b.mu.Lock()
	state := b.state
	m := b.metrics
	disposed := b.disposed
	b.mu.Unlock()

	if disposed {
		result.AddError("breaker disposed")
		result.Score = 0
		result.Duration = time.Since(start)
		return result
	}

	switch state {
	case StateOpen:
		result.AddError("circuit open for dependency %s", b.name)
		result.Score = 0
	case StateHalfOpen:
		result.AddWarning("circuit half-open, probing dependency %s", b.name)
		result.Degrade(0.5)
	default:
		if m.FailureRate() > 0.1 {
			result.AddWarning("elevated failure rate %.2f", m.FailureRate())
			result.Degrade(0.7)
		}
	}
	result.Duration = time.Since(start)
	return result
}
