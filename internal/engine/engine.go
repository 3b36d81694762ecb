// internal/engine/engine.go
package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/breaker"
	"github.com/reqtune/reqtune/internal/health"
	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/persistence"
	"github.com/reqtune/reqtune/internal/predictor"
	"github.com/reqtune/reqtune/internal/strategy"
	"github.com/reqtune/reqtune/internal/trainer"
)

// Options tunes the engine facade
type Options struct {
	ConfidenceFloor float64
	CacheTTL        time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	// per-request-type analysis rate; hot types beyond this fail open
	AnalysisRate  rate.Limit
	AnalysisBurst int
}

// DefaultOptions returns production defaults
func DefaultOptions() Options {
	return Options{
		ConfidenceFloor: 0.3,
		CacheTTL:        30 * time.Second,
		MaxRetries:      2,
		RetryBaseDelay:  10 * time.Millisecond,
		AnalysisRate:    rate.Limit(50),
		AnalysisBurst:   100,
	}
}

// Engine is the public contract surface of the optimization core. It owns
// the decorated optimizer chain and mediates between callers, the analysis
// table, the estimators, and the strategies. When the subsystem degrades
// the correct outcome is always "no optimization", never a failed request.
type Engine struct {
	opts       Options
	table      *analysis.Table
	store      *metrics.Store
	estimator  *analysis.Estimator
	sampler    *analysis.SystemSampler
	breakers   *breaker.Registry
	caching    *strategy.Caching
	batching   *strategy.Batching
	learning   *strategy.Learning
	optimizer  Optimizer
	monitoring *MonitoringOptimizer
	trainer    *trainer.Trainer
	scorer     *health.Scorer
	collectors *metrics.Collectors
	decisions  DecisionSink
	logger     *zap.Logger

	learningMode atomic.Bool
	disposed     atomic.Bool
	floorBits    atomic.Uint64

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// Deps carries the collaborators the engine composes over
type Deps struct {
	Table      *analysis.Table
	Store      *metrics.Store
	Estimator  *analysis.Estimator
	Sampler    *analysis.SystemSampler
	Breakers   *breaker.Registry
	Caching    *strategy.Caching
	Batching   *strategy.Batching
	Learning   *strategy.Learning
	Registry   *strategy.Registry
	Trainer    *trainer.Trainer
	Scorer     *health.Scorer
	Collectors *metrics.Collectors
	Decisions  DecisionSink
	Logger     *zap.Logger
}

// DecisionSink receives issued decisions for offline persistence. Sinks must
// never block: the engine calls Record on the decision path.
type DecisionSink interface {
	Record(event persistence.DecisionEvent)
}

// New assembles the engine: core template wrapped by caching, monitoring
// and retry decorators, outermost first on the call path.
func New(opts Options, deps Deps) (*Engine, error) {
	if deps.Table == nil || deps.Store == nil || deps.Registry == nil {
		return nil, invalidArg("table, store and strategy registry are required")
	}
	if opts.ConfidenceFloor < 0 || opts.ConfidenceFloor > 1 {
		return nil, invalidArg("confidence floor %v outside [0,1]", opts.ConfidenceFloor)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	scorer := deps.Scorer
	if scorer == nil {
		var err error
		scorer, err = health.NewScorer(health.DefaultWeights())
		if err != nil {
			return nil, err
		}
	}

	core := NewCore(deps.Registry, logger)
	cached := WithCaching(core, opts.CacheTTL, deps.Collectors)
	monitored := WithMonitoring(cached, deps.Collectors, logger)
	chain := WithRetry(monitored, opts.MaxRetries, opts.RetryBaseDelay, deps.Collectors)

	e := &Engine{
		opts:       opts,
		table:      deps.Table,
		store:      deps.Store,
		estimator:  deps.Estimator,
		sampler:    deps.Sampler,
		breakers:   deps.Breakers,
		caching:    deps.Caching,
		batching:   deps.Batching,
		learning:   deps.Learning,
		optimizer:  chain,
		monitoring: monitored,
		trainer:    deps.Trainer,
		scorer:     scorer,
		collectors: deps.Collectors,
		decisions:  deps.Decisions,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
	}
	e.learningMode.Store(true)
	e.floorBits.Store(math.Float64bits(opts.ConfidenceFloor))
	return e, nil
}

// ConfidenceFloor returns the current rejection threshold
func (e *Engine) ConfidenceFloor() float64 {
	return math.Float64frombits(e.floorBits.Load())
}

// SetConfidenceFloor adjusts the rejection threshold at runtime, e.g. on a
// configuration reload
func (e *Engine) SetConfidenceFloor(f float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if f < 0 || f > 1 {
		return invalidArg("confidence floor %v outside [0,1]", f)
	}
	e.floorBits.Store(math.Float64bits(f))
	return nil
}

// Subscribe registers a degradation-alert observer
func (e *Engine) Subscribe(o Observer) {
	e.monitoring.Subscribe(o)
}

func (e *Engine) guard() error {
	if e.disposed.Load() {
		return ErrDisposed
	}
	return nil
}

func (e *Engine) allowAnalysis(requestType string) bool {
	e.limiterMu.Lock()
	lim, ok := e.limiters[requestType]
	if !ok {
		lim = rate.NewLimiter(e.opts.AnalysisRate, e.opts.AnalysisBurst)
		e.limiters[requestType] = lim
	}
	e.limiterMu.Unlock()
	return lim.Allow()
}

// declined builds the "no optimization" recommendation used on fail-open
// paths
func declined(reason string) *strategy.Recommendation {
	r := strategy.NewRecommendation(strategy.KindNone, 0)
	r.Parameters["reason"] = reason
	return r
}

// AnalyzeRequest records an execution outcome and returns an optimization
// recommendation for the request type. Recommendations below the configured
// confidence floor are rejected (returned as KindNone), not clamped.
func (e *Engine) AnalyzeRequest(ctx context.Context, requestType string, m *analysis.ExecutionMetrics) (*strategy.Recommendation, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if requestType == "" {
		return nil, invalidArg("request type is required")
	}
	if m == nil {
		return nil, invalidArg("execution metrics are required")
	}
	if err := m.Validate(); err != nil {
		return nil, invalidArg("%v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !e.allowAnalysis(requestType) {
		// hot type over budget: fail open rather than queue decisions
		return declined("analysis throttled"), nil
	}

	if err := e.table.ReportOutcome(requestType, *m); err != nil {
		return nil, invalidArg("%v", err)
	}

	sc := e.buildContext(ctx, requestType)
	sc.Operation = e.pickOperation(sc)

	res, err := e.optimizer.Optimize(ctx, sc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("optimization failed open", zap.String("request_type", requestType), zap.Error(err))
		return declined("optimizer unavailable"), nil
	}
	if !res.Success || res.Recommendation == nil {
		reason := res.Reason
		if reason == "" {
			reason = res.Error
		}
		e.recordDecision(requestType, sc.Operation, strategy.KindNone, 0, false, res.Duration)
		return declined(reason), nil
	}

	rec := res.Recommendation
	if rec.Confidence < e.ConfidenceFloor() {
		e.recordDecision(requestType, sc.Operation, rec.Strategy, rec.Confidence, false, res.Duration)
		return declined("confidence below floor"), nil
	}
	e.collectors.ObserveDecision(rec.Strategy.String())
	e.recordDecision(requestType, sc.Operation, rec.Strategy, rec.Confidence, true, res.Duration)
	return rec, nil
}

func (e *Engine) recordDecision(requestType, operation string, kind strategy.Kind, confidence float64, accepted bool, d time.Duration) {
	if e.decisions == nil {
		return
	}
	e.decisions.Record(persistence.DecisionEvent{
		RequestType: requestType,
		Operation:   operation,
		Strategy:    kind.String(),
		Confidence:  confidence,
		Accepted:    accepted,
		Duration:    d,
	})
}

// buildContext assembles the strategy context from the shared tables
func (e *Engine) buildContext(ctx context.Context, requestType string) *strategy.Context {
	sc := &strategy.Context{RequestType: requestType}

	if snap, ok := e.table.Entry(requestType); ok {
		var totalExecs int64
		for _, h := range snap.History {
			totalExecs += h.TotalExecutions
		}
		sc.Analysis = &strategy.SnapshotView{
			RequestType:    snap.RequestType,
			RepeatRate:     snap.RepeatRate,
			ErrorRate:      snap.ErrorRate,
			AvgConcurrency: snap.AvgConcurrency,
			AvgLatency:     snap.AvgLatency,
			TotalReported:  snap.TotalReported,
			TotalExecs:     totalExecs,
			LastUpdated:    snap.LastUpdated,
		}
	}

	if e.sampler != nil {
		load := e.sampler.Snapshot(ctx)
		level := analysis.LoadIdle
		if e.estimator != nil {
			level = e.estimator.LoadLevel(ctx)
		}
		sc.Load = strategy.LoadView{
			CPUUtilization:    load.CPUUtilization,
			MemoryUtilization: load.MemoryUtilization,
			Throughput:        load.Throughput,
			ErrorRate:         load.ErrorRate,
			Level:             level.String(),
		}
	}
	return sc
}

// pickOperation routes the request type to the dominant optimization signal
func (e *Engine) pickOperation(sc *strategy.Context) string {
	if sc.Analysis == nil {
		return strategy.OpCaching
	}
	switch {
	case sc.Analysis.ErrorRate > 0.2:
		return strategy.OpCircuitBreaking
	case sc.Analysis.RepeatRate >= 0.5 && sc.Load.Throughput >= 5:
		return strategy.OpBatching
	default:
		return strategy.OpCaching
	}
}

// PredictOptimalBatchSize returns the batch size for a request type under
// the given load level
func (e *Engine) PredictOptimalBatchSize(ctx context.Context, requestType string, load analysis.LoadLevel) (int, error) {
	if err := e.guard(); err != nil {
		return 0, err
	}
	if requestType == "" {
		return 0, invalidArg("request type is required")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	sc := e.buildContext(ctx, requestType)
	if sc.Analysis == nil {
		sc.Analysis = &strategy.SnapshotView{RequestType: requestType, AvgConcurrency: 1}
	}
	sc.Load.Level = load.String()

	size := e.batching.BatchSize(sc.Analysis, sc.Load)

	// let the trained regressor refine the heuristic when available
	if e.trainer != nil {
		if set := e.trainer.Active(); set != nil && set.BatchGain != nil && set.Version > 0 {
			if gain, err := set.BatchGain.Predict([]float64{float64(size)}); err == nil && gain < 0 {
				size /= 2
				if size < 1 {
					size = 1
				}
			}
		}
	}
	return size, nil
}

// ShouldCache evaluates access patterns for a request type
func (e *Engine) ShouldCache(ctx context.Context, requestType string, patterns []strategy.AccessPattern) (*strategy.CachingRecommendation, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if requestType == "" {
		return nil, invalidArg("request type is required")
	}
	if len(patterns) == 0 {
		return nil, invalidArg("at least one access pattern is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.caching.Evaluate(requestType, patterns), nil
}

// LearnFromExecution feeds applied-optimization outcomes back into the
// learning log and the analysis table. Updates are applied only after all
// arguments validate.
func (e *Engine) LearnFromExecution(ctx context.Context, requestType string, applied []strategy.AppliedResult, actual *analysis.ExecutionMetrics) error {
	if err := e.guard(); err != nil {
		return err
	}
	if requestType == "" {
		return invalidArg("request type is required")
	}
	if actual == nil {
		return invalidArg("actual execution metrics are required")
	}
	if err := actual.Validate(); err != nil {
		return invalidArg("%v", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.learningMode.Load() {
		return nil
	}

	if err := e.table.ReportOutcome(requestType, *actual); err != nil {
		return invalidArg("%v", err)
	}
	for _, r := range applied {
		e.learning.Append(r)
	}

	// shrink exploration as evidence accumulates that decisions pay off
	var successes int
	for _, r := range applied {
		if r.Success {
			successes++
		}
	}
	if len(applied) > 0 {
		successRate := float64(successes) / float64(len(applied))
		current := e.learning.ExplorationRate()
		next := 0.9*current + 0.1*(1-successRate)
		_ = e.learning.SetExplorationRate(next)
	}
	return nil
}

// SetLearningMode toggles whether LearnFromExecution mutates state
func (e *Engine) SetLearningMode(enabled bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	e.learningMode.Store(enabled)
	return nil
}

// SetExplorationRate tunes the learning policy explicitly
func (e *Engine) SetExplorationRate(r float64) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.learning.SetExplorationRate(r)
}

// ModelStatistics exposes the trainer's current model quality snapshot
func (e *Engine) ModelStatistics() (predictor.Statistics, error) {
	if err := e.guard(); err != nil {
		return predictor.Statistics{}, err
	}
	if e.trainer == nil {
		return predictor.Statistics{}, nil
	}
	return e.trainer.Statistics(), nil
}

// Close shuts the engine down; every public operation fails with
// ErrDisposed afterwards.
func (e *Engine) Close() error {
	if e.disposed.Swap(true) {
		return nil
	}
	if e.breakers != nil {
		_ = e.breakers.Close()
	}
	if e.trainer != nil {
		e.trainer.Stop()
	}
	e.logger.Info("optimization engine closed")
	return nil
}
