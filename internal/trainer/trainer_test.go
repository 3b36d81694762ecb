// internal/trainer/trainer_test.go
package trainer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/predictor"
)

func newTestTrainer(t *testing.T, cfg Config) (*Trainer, *analysis.Table) {
	t.Helper()
	store := metrics.NewStore(100, 0.3, zap.NewNop())
	table := analysis.NewTable(200, store, zap.NewNop())
	return New(cfg, table, nil, zap.NewNop()), table
}

// feedLinear reports samples whose latency grows linearly with concurrency
func feedLinear(t *testing.T, table *analysis.Table, requestType string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := table.ReportOutcome(requestType, analysis.ExecutionMetrics{
			AverageLatency:       time.Duration(10+5*i) * time.Millisecond,
			TotalExecutions:      20,
			SuccessfulExecutions: 20,
			ConcurrentExecutions: i,
		})
		require.NoError(t, err)
	}
}

func TestTrainerStartsWithDefaultSet(t *testing.T) {
	tr, _ := newTestTrainer(t, DefaultConfig())

	set := tr.Active()
	require.NotNil(t, set)
	assert.Equal(t, 0, set.Version)

	// untrained default never recommends caching below a 0.8 repeat rate
	pred, err := set.CacheClass.Predict([]float64{0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred)
}

func TestTrainerSkipsCycleOnTooFewSamples(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 20
	tr, table := newTestTrainer(t, cfg)

	feedLinear(t, table, "orders", 5)

	before := tr.Active()
	err := tr.RunCycle(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTrainingData))

	// prior set stays active
	assert.Same(t, before, tr.Active())
	assert.Equal(t, 0, tr.Statistics().ModelVersion)
}

func TestTrainerCycleSwapsNewSet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	tr, table := newTestTrainer(t, cfg)

	feedLinear(t, table, "orders", 50)

	require.NoError(t, tr.RunCycle(context.Background()))

	set := tr.Active()
	assert.Equal(t, 1, set.Version)
	assert.False(t, set.TrainedAt.IsZero())

	// latency grows with concurrency, so the fitted slope is positive
	low, err := set.Latency.Predict([]float64{1})
	require.NoError(t, err)
	high, err := set.Latency.Predict([]float64{40})
	require.NoError(t, err)
	assert.Greater(t, high, low)

	stats := tr.Statistics()
	assert.Equal(t, 1, stats.ModelVersion)
	assert.Equal(t, 50, stats.TrainingDataPoints)
	assert.Greater(t, stats.Confidence, 0.0)
	assert.False(t, stats.LastTrainedAt.IsZero())
}

func TestTrainerVersionIncrementsPerCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	tr, table := newTestTrainer(t, cfg)

	feedLinear(t, table, "orders", 30)

	require.NoError(t, tr.RunCycle(context.Background()))
	require.NoError(t, tr.RunCycle(context.Background()))
	assert.Equal(t, 2, tr.Active().Version)
}

func TestTrainerSubsamplesLargeDatasets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	cfg.MaxSamples = 40
	tr, table := newTestTrainer(t, cfg)

	for i := 0; i < 4; i++ {
		feedLinear(t, table, fmt.Sprintf("type-%d", i), 50)
	}

	require.NoError(t, tr.RunCycle(context.Background()))
	assert.LessOrEqual(t, tr.Statistics().TrainingDataPoints, 40)
}

func TestSubsampleKeepsSmallSetsIntact(t *testing.T) {
	in := make([]sample, 10)
	assert.Len(t, subsample(in, 100), 10)
	assert.Len(t, subsample(in, 10), 10)
	assert.Len(t, subsample(make([]sample, 1000), 10), 10)
}

type capturingSink struct {
	saved []predictor.Statistics
	err   error
}

func (s *capturingSink) SaveModelStatistics(stats predictor.Statistics) error {
	s.saved = append(s.saved, stats)
	return s.err
}

func TestTrainerPersistsStatisticsAfterCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	tr, table := newTestTrainer(t, cfg)

	sink := &capturingSink{}
	tr.SetStatsSink(sink)

	feedLinear(t, table, "orders", 50)
	require.NoError(t, tr.RunCycle(context.Background()))

	require.Len(t, sink.saved, 1)
	assert.Equal(t, 1, sink.saved[0].ModelVersion)
	assert.Equal(t, 50, sink.saved[0].TrainingDataPoints)
}

func TestTrainerSinkFailureDoesNotFailCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	tr, table := newTestTrainer(t, cfg)

	sink := &capturingSink{err: errors.New("database down")}
	tr.SetStatsSink(sink)

	feedLinear(t, table, "orders", 50)
	require.NoError(t, tr.RunCycle(context.Background()))
	assert.Equal(t, 1, tr.Active().Version)
}

func TestTrainerSkippedCycleSavesNothing(t *testing.T) {
	tr, _ := newTestTrainer(t, DefaultConfig())
	sink := &capturingSink{}
	tr.SetStatsSink(sink)

	require.Error(t, tr.RunCycle(context.Background()))
	assert.Empty(t, sink.saved)
}

func TestTrainerRefusesCancelledContext(t *testing.T) {
	tr, table := newTestTrainer(t, DefaultConfig())
	feedLinear(t, table, "orders", 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.RunCycle(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, tr.Active().Version)
}

func TestTrainerStoppedRejectsCycles(t *testing.T) {
	tr, table := newTestTrainer(t, DefaultConfig())
	feedLinear(t, table, "orders", 50)

	tr.Stop()
	tr.Stop() // idempotent

	err := tr.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, tr.Active().Version)
}

func TestTrainerStartRejectsBadSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Schedule = "not a cron spec"
	tr, _ := newTestTrainer(t, cfg)
	assert.Error(t, tr.Start())
}

func TestTrainerHealthUntrained(t *testing.T) {
	tr, _ := newTestTrainer(t, DefaultConfig())

	res := tr.CheckHealth(context.Background())
	assert.True(t, res.Healthy)
	assert.NotEmpty(t, res.Warnings)
	assert.Less(t, res.Score, 1.0)
}

func TestTrainerHealthAfterTraining(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	cfg.MinAccuracy = 0.0
	cfg.MinF1 = 0.0
	cfg.MinConfidence = 0.0
	tr, table := newTestTrainer(t, cfg)

	feedLinear(t, table, "orders", 50)
	require.NoError(t, tr.RunCycle(context.Background()))

	res := tr.CheckHealth(context.Background())
	assert.True(t, res.Healthy)
	assert.Empty(t, res.Errors)
}

func TestTrainerHealthFlagsLowAccuracy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSamples = 10
	cfg.MinAccuracy = 1.1 // impossible bar
	tr, table := newTestTrainer(t, cfg)

	feedLinear(t, table, "orders", 50)
	require.NoError(t, tr.RunCycle(context.Background()))

	res := tr.CheckHealth(context.Background())
	assert.False(t, res.Healthy)
	assert.NotEmpty(t, res.Errors)
}

func TestEvaluateClassifierPerfectSplit(t *testing.T) {
	samples := []sample{
		{repeatRate: 0.9, cacheable: true},
		{repeatRate: 0.8, cacheable: true},
		{repeatRate: 0.1, cacheable: false},
		{repeatRate: 0.2, cacheable: false},
	}
	stats := evaluateClassifier(&predictor.Threshold{Cut: 0.5}, samples)
	assert.Equal(t, 1.0, stats.Accuracy)
	assert.Equal(t, 1.0, stats.Precision)
	assert.Equal(t, 1.0, stats.Recall)
	assert.Equal(t, 1.0, stats.F1Score)
}
