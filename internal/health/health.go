// internal/health/health.go
package health

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Status values reported by component health checks
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Result is the outcome of a single component health check
type Result struct {
	Healthy  bool          `json:"healthy"`
	Status   string        `json:"status"`
	Score    float64       `json:"score"` // 0.0 to 1.0
	Warnings []string      `json:"warnings,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Healthy returns a passing result with a perfect score
func Healthy() Result {
	return Result{Healthy: true, Status: StatusHealthy, Score: 1.0}
}

// AddWarning appends a non-fatal warning
func (r *Result) AddWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// AddError appends a failure and marks the result unhealthy
func (r *Result) AddError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Healthy = false
	r.Status = StatusUnhealthy
}

// Degrade marks the result degraded without failing it outright
func (r *Result) Degrade(score float64) {
	r.Status = StatusDegraded
	if score < r.Score {
		r.Score = score
	}
}

// Weights defines the importance of each factor in the composite score.
// The four weights must sum to 1.0.
type Weights struct {
	Performance float64 `yaml:"performance"`
	Reliability float64 `yaml:"reliability"`
	Resource    float64 `yaml:"resource"`
	Freshness   float64 `yaml:"freshness"`
}

// DefaultWeights returns the stock weighting
func DefaultWeights() Weights {
	return Weights{Performance: 0.35, Reliability: 0.35, Resource: 0.15, Freshness: 0.15}
}

// Validate checks the weights sum to 1.0
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"performance": w.Performance,
		"reliability": w.Reliability,
		"resource":    w.Resource,
		"freshness":   w.Freshness,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("health: %s weight %v outside [0,1]", name, v)
		}
	}
	sum := w.Performance + w.Reliability + w.Resource + w.Freshness
	if math.Abs(sum-1.0) > 1e-9 {
		return errors.New("health: weights must sum to 1.0")
	}
	return nil
}

// Factors carries the per-factor scores fed into the composite
type Factors struct {
	Performance float64
	Reliability float64
	Resource    float64
	Freshness   float64
}

// Scorer combines per-factor scores into one composite score
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer; invalid weights fall back to defaults
func NewScorer(w Weights) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w}, nil
}

// Score returns the weighted composite in [0,1]
func (s *Scorer) Score(f Factors) float64 {
	score := clamp01(f.Performance)*s.weights.Performance +
		clamp01(f.Reliability)*s.weights.Reliability +
		clamp01(f.Resource)*s.weights.Resource +
		clamp01(f.Freshness)*s.weights.Freshness
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
