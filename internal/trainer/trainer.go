// internal/trainer/trainer.go
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/health"
	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/predictor"
)

// ErrTrainingData marks a cycle skipped for insufficient or invalid
// samples; the prior predictor set stays active.
var ErrTrainingData = errors.New("trainer: training data invalid")

// Config tunes the trainer
type Config struct {
	Schedule             string        `yaml:"schedule"` // cron spec
	MinSamples           int           `yaml:"min_samples"`
	MaxSamples           int           `yaml:"max_samples"`
	MinAccuracy          float64       `yaml:"min_accuracy"`
	MinF1                float64       `yaml:"min_f1"`
	MinConfidence        float64       `yaml:"min_confidence"`
	MaxPredictionLatency time.Duration `yaml:"max_prediction_latency"`
	MaxStaleness         time.Duration `yaml:"max_staleness"`
}

// DefaultConfig returns production defaults: retrain every 15 minutes
func DefaultConfig() Config {
	return Config{
		Schedule:             "*/15 * * * *",
		MinSamples:           20,
		MaxSamples:           5000,
		MinAccuracy:          0.6,
		MinF1:                0.5,
		MinConfidence:        0.4,
		MaxPredictionLatency: 5 * time.Millisecond,
		MaxStaleness:         7 * 24 * time.Hour,
	}
}

// sample is one training row extracted from the analysis table
type sample struct {
	concurrency float64
	latencyMS   float64
	repeatRate  float64
	cacheable   bool // label: low error rate and high repeat volume
}

// StatsSink receives model statistics after each successful training cycle.
// Sink failures are logged, never propagated.
type StatsSink interface {
	SaveModelStatistics(stats predictor.Statistics) error
}

// Trainer periodically refreshes the predictor set from accumulated
// analysis data. Readers load the active set through an atomic pointer,
// so a swap never blocks them.
type Trainer struct {
	cfg        Config
	table      *analysis.Table
	logger     *zap.Logger
	collectors *metrics.Collectors
	sink       StatsSink

	active atomic.Pointer[predictor.Set]

	statsMu sync.Mutex
	stats   predictor.Statistics

	cron    *cron.Cron
	stopped atomic.Bool
}

// New creates a trainer seeded with the untrained default set
func New(cfg Config, table *analysis.Table, collectors *metrics.Collectors, logger *zap.Logger) *Trainer {
	if cfg.MinSamples < 2 {
		cfg.MinSamples = 2
	}
	if cfg.MaxSamples < cfg.MinSamples {
		cfg.MaxSamples = cfg.MinSamples * 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Trainer{
		cfg:        cfg,
		table:      table,
		logger:     logger,
		collectors: collectors,
	}
	t.active.Store(predictor.DefaultSet())
	return t
}

// SetStatsSink registers a durable sink for model statistics. Call during
// wiring, before Start.
func (t *Trainer) SetStatsSink(sink StatsSink) {
	t.sink = sink
}

// Start schedules periodic retraining; it does not run a cycle immediately
func (t *Trainer) Start() error {
	if t.cron != nil {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(t.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := t.RunCycle(ctx); err != nil {
			t.logger.Warn("training cycle skipped", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("trainer: bad schedule %q: %w", t.cfg.Schedule, err)
	}
	t.cron = c
	c.Start()
	t.logger.Info("trainer started", zap.String("schedule", t.cfg.Schedule))
	return nil
}

// Stop halts the schedule; the active set stays available to readers
func (t *Trainer) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	if t.cron != nil {
		t.cron.Stop()
	}
}

// Active returns the currently published predictor set
func (t *Trainer) Active() *predictor.Set {
	return t.active.Load()
}

// Statistics returns the model quality snapshot
func (t *Trainer) Statistics() predictor.Statistics {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// RunCycle validates accumulated samples, trains a fresh predictor set and
// swaps it in atomically. On validation failure the prior set is retained
// and ErrTrainingData returned.
func (t *Trainer) RunCycle(ctx context.Context) error {
	if t.stopped.Load() {
		return errors.New("trainer: stopped")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	samples := t.collect()
	if err := t.validate(samples); err != nil {
		t.collectors.ObserveTrainerCycle("validation_failed")
		return err
	}
	samples = subsample(samples, t.cfg.MaxSamples)

	set, stats, err := t.train(samples)
	if err != nil {
		t.collectors.ObserveTrainerCycle("training_failed")
		return fmt.Errorf("%w: %v", ErrTrainingData, err)
	}

	prev := t.active.Load()
	set.Version = prev.Version + 1
	set.TrainedAt = time.Now()
	t.active.Store(set)

	stats.ModelVersion = set.Version
	stats.LastTrainedAt = set.TrainedAt
	stats.TrainingDataPoints = len(samples)
	t.statsMu.Lock()
	t.stats = stats
	t.statsMu.Unlock()

	if t.sink != nil {
		if err := t.sink.SaveModelStatistics(stats); err != nil {
			t.logger.Warn("model statistics persistence failed", zap.Error(err))
		}
	}

	t.collectors.ObserveTrainerCycle("success")
	t.logger.Info("predictor set refreshed",
		zap.Int("version", set.Version),
		zap.Int("samples", len(samples)),
		zap.Float64("accuracy", stats.Accuracy))
	return nil
}

func (t *Trainer) collect() []sample {
	var out []sample
	for _, rt := range t.table.Types() {
		snap, ok := t.table.Entry(rt)
		if !ok {
			continue
		}
		for _, m := range snap.History {
			out = append(out, sample{
				concurrency: float64(m.ConcurrentExecutions),
				latencyMS:   float64(m.AverageLatency.Milliseconds()),
				repeatRate:  snap.RepeatRate,
				cacheable:   m.ErrorRate() < 0.05 && snap.RepeatRate >= 0.5,
			})
		}
	}
	return out
}

func (t *Trainer) validate(samples []sample) error {
	if len(samples) < t.cfg.MinSamples {
		return fmt.Errorf("%w: %d samples, need %d", ErrTrainingData, len(samples), t.cfg.MinSamples)
	}
	for _, s := range samples {
		if s.latencyMS < 0 || s.concurrency < 0 {
			return fmt.Errorf("%w: negative measurements", ErrTrainingData)
		}
	}
	return nil
}

// subsample keeps every k-th element to bound cycle duration
func subsample(samples []sample, max int) []sample {
	if len(samples) <= max {
		return samples
	}
	stride := len(samples) / max
	if stride < 1 {
		stride = 1
	}
	out := make([]sample, 0, max)
	for i := 0; i < len(samples) && len(out) < max; i += stride {
		out = append(out, samples[i])
	}
	return out
}

func (t *Trainer) train(samples []sample) (*predictor.Set, predictor.Statistics, error) {
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.concurrency
		ys[i] = s.latencyMS
	}

	latencyModel, r2, err := predictor.FitLinear(xs, ys)
	if err != nil {
		return nil, predictor.Statistics{}, err
	}

	// batch gain: improvement per unit batch size shadows the latency
	// slope; a steeply rising latency curve means batching stops paying
	batchModel := &predictor.Linear{Intercept: 0, Slope: -latencyModel.Slope}

	classifier := &predictor.Threshold{Cut: 0.5}
	stats := evaluateClassifier(classifier, samples)
	stats.Confidence = (r2 + stats.Accuracy) / 2
	stats.AveragePredictionLatency = measurePredictionLatency(latencyModel)

	return &predictor.Set{
		Latency:    latencyModel,
		BatchGain:  batchModel,
		CacheClass: classifier,
	}, stats, nil
}

// evaluateClassifier scores the cacheability classifier against the labels
// carried by the samples
func evaluateClassifier(clf *predictor.Threshold, samples []sample) predictor.Statistics {
	var tp, tn, fp, fn float64
	for _, s := range samples {
		pred, err := clf.Predict([]float64{s.repeatRate})
		if err != nil {
			continue
		}
		predicted := pred >= 0.5
		switch {
		case predicted && s.cacheable:
			tp++
		case predicted && !s.cacheable:
			fp++
		case !predicted && s.cacheable:
			fn++
		default:
			tn++
		}
	}

	total := tp + tn + fp + fn
	var stats predictor.Statistics
	if total > 0 {
		stats.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		stats.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		stats.Recall = tp / (tp + fn)
	}
	if stats.Precision+stats.Recall > 0 {
		stats.F1Score = 2 * stats.Precision * stats.Recall / (stats.Precision + stats.Recall)
	}
	return stats
}

func measurePredictionLatency(p predictor.Predictor) time.Duration {
	const probes = 100
	start := time.Now()
	for i := 0; i < probes; i++ {
		_, _ = p.Predict([]float64{float64(i)})
	}
	return time.Since(start) / probes
}

// CheckHealth degrades when accuracy or F1 fall below the configured
// minimums, and warns on low confidence, slow predictions or staleness
func (t *Trainer) CheckHealth(ctx context.Context) health.Result {
	start := time.Now()
	result := health.Healthy()

	stats := t.Statistics()
	set := t.Active()

	if set.Version == 0 {
		result.AddWarning("no trained model yet, using defaults")
		result.Degrade(0.7)
		result.Duration = time.Since(start)
		return result
	}

	if stats.Accuracy < t.cfg.MinAccuracy {
		result.AddError("accuracy %.2f below minimum %.2f", stats.Accuracy, t.cfg.MinAccuracy)
		result.Score = stats.Accuracy
	}
	if stats.F1Score < t.cfg.MinF1 {
		result.AddError("f1 %.2f below minimum %.2f", stats.F1Score, t.cfg.MinF1)
		if stats.F1Score < result.Score {
			result.Score = stats.F1Score
		}
	}
	if stats.Confidence < t.cfg.MinConfidence {
		result.AddWarning("confidence %.2f below %.2f", stats.Confidence, t.cfg.MinConfidence)
	}
	if t.cfg.MaxPredictionLatency > 0 && stats.AveragePredictionLatency > t.cfg.MaxPredictionLatency {
		result.AddWarning("prediction latency %v above %v",
			stats.AveragePredictionLatency, t.cfg.MaxPredictionLatency)
	}
	if t.cfg.MaxStaleness > 0 && time.Since(stats.LastTrainedAt) > t.cfg.MaxStaleness {
		result.AddWarning("model stale: last trained %v", stats.LastTrainedAt)
	}

	result.Duration = time.Since(start)
	return result
}
