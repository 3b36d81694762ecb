// internal/predictor/linear.go
package predictor

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// Linear is a single-feature least-squares regression model
type Linear struct {
	Intercept float64
	Slope     float64
}

// Kind implements Predictor
func (l *Linear) Kind() Kind { return KindRegression }

// Predict returns intercept + slope*x for the first feature
func (l *Linear) Predict(features []float64) (float64, error) {
	if len(features) == 0 {
		return 0, errors.New("predictor: at least one feature required")
	}
	return l.Intercept + l.Slope*features[0], nil
}

// FitLinear fits a least-squares line to (xs, ys). It also returns R² as a
// goodness-of-fit measure in [0,1].
func FitLinear(xs, ys []float64) (*Linear, float64, error) {
	if len(xs) != len(ys) {
		return nil, 0, errors.New("predictor: feature/label length mismatch")
	}
	if len(xs) < 2 {
		return nil, 0, errors.New("predictor: need at least two samples")
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if r2 < 0 {
		r2 = 0
	}
	return &Linear{Intercept: alpha, Slope: beta}, r2, nil
}

// Threshold is a one-feature binary classifier: predicts 1.0 when the
// feature meets or exceeds Cut.
type Threshold struct {
	Cut float64
}

// Kind implements Predictor
func (t *Threshold) Kind() Kind { return KindClassification }

// Predict returns 1.0 when features[0] >= Cut, else 0.0
func (t *Threshold) Predict(features []float64) (float64, error) {
	if len(features) == 0 {
		return 0, errors.New("predictor: at least one feature required")
	}
	if features[0] >= t.Cut {
		return 1.0, nil
	}
	return 0.0, nil
}

// DefaultSet returns an untrained, conservative predictor set: flat latency,
// no batch gain, caching only at high repeat rates.
func DefaultSet() *Set {
	return &Set{
		Latency:    &Linear{},
		BatchGain:  &Linear{},
		CacheClass: &Threshold{Cut: 0.8},
		Version:    0,
	}
}
