// internal/predictor/predictor.go
package predictor

import (
	"errors"
	"time"
)

// Kind distinguishes what a predictor estimates
type Kind int

const (
	KindRegression Kind = iota
	KindClassification
	KindForecasting
)

func (k Kind) String() string {
	switch k {
	case KindRegression:
		return "regression"
	case KindClassification:
		return "classification"
	case KindForecasting:
		return "forecasting"
	default:
		return "unknown"
	}
}

// ErrNoModel indicates a predictor set slot has not been trained yet
var ErrNoModel = errors.New("predictor: no model available")

// Predictor is the interchangeable model abstraction. Implementations are
// immutable after construction; the trainer swaps whole sets atomically.
type Predictor interface {
	Kind() Kind
	Predict(features []float64) (float64, error)
}

// Set bundles the predictors the optimization strategies consume. A Set is
// never mutated after the trainer publishes it.
type Set struct {
	Latency    Predictor // regression: expected latency from load features
	BatchGain  Predictor // regression: expected improvement from batch size
	CacheClass Predictor // classification: 1.0 when caching should pay off
	Version    int
	TrainedAt  time.Time
}

// Statistics is the read-only model quality snapshot exposed to health
// checks
type Statistics struct {
	Accuracy                 float64       `json:"accuracy"`
	Precision                float64       `json:"precision"`
	Recall                   float64       `json:"recall"`
	F1Score                  float64       `json:"f1_score"`
	Confidence               float64       `json:"confidence"`
	AveragePredictionLatency time.Duration `json:"average_prediction_latency"`
	TrainingDataPoints       int           `json:"training_data_points"`
	ModelVersion             int           `json:"model_version"`
	LastTrainedAt            time.Time     `json:"last_trained_at"`
}
