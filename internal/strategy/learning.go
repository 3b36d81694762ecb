// internal/strategy/learning.go
package strategy

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Learning consumes the bounded log of applied-optimization results,
// computes per-strategy success rates and the confidence/improvement
// correlation, and emits preferred vs. avoid strategy lists.
type Learning struct {
	minSamples int
	maxLog     int
	logger     *zap.Logger

	mu              sync.Mutex
	log             []AppliedResult
	explorationRate float64
}

// NewLearning creates the learning strategy
func NewLearning(minSamples, maxLog int, logger *zap.Logger) *Learning {
	if minSamples < 2 {
		minSamples = 2
	}
	if maxLog <= 0 {
		maxLog = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Learning{
		minSamples:      minSamples,
		maxLog:          maxLog,
		logger:          logger,
		explorationRate: 0.1,
	}
}

// Name implements Strategy
func (l *Learning) Name() string { return "learning" }

// CanHandle implements Strategy
func (l *Learning) CanHandle(operation string) bool { return operation == OpLearning }

// Append adds an applied result to the bounded log, ordered by completion
// time of the call, evicting the oldest on overflow
func (l *Learning) Append(r AppliedResult) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, r)
	if len(l.log) > l.maxLog {
		l.log = l.log[1:]
	}
}

// SetExplorationRate tunes the exploration policy explicitly
func (l *Learning) SetExplorationRate(rate float64) error {
	if rate < 0 || rate > 1 {
		return errors.New("strategy: exploration rate outside [0,1]")
	}
	l.mu.Lock()
	l.explorationRate = rate
	l.mu.Unlock()
	return nil
}

// ExplorationRate returns the current exploration rate
func (l *Learning) ExplorationRate() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.explorationRate
}

// Execute implements Strategy
func (l *Learning) Execute(ctx context.Context, sc *Context) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Operation: sc.Operation, Success: true}
	defer func() { result.Duration = time.Since(start) }()

	l.mu.Lock()
	combined := make([]AppliedResult, 0, len(l.log)+len(sc.Applied))
	combined = append(combined, l.log...)
	rate := l.explorationRate
	l.mu.Unlock()
	combined = append(combined, sc.Applied...)

	if len(combined) == 0 {
		result.Reason = "no applied-optimization history yet"
		return result, nil
	}

	successRates := successRateByStrategy(combined)
	correlation := l.ConfidenceCorrelation(combined)
	preferred, avoid := splitPreferences(successRates)

	r := NewRecommendation(KindNone, correlationConfidence(correlation, len(combined)))
	r.Parameters["preferred_strategies"] = preferred
	r.Parameters["avoid_strategies"] = avoid
	r.Parameters["confidence_correlation"] = correlation
	r.Parameters["exploration_rate"] = rate
	r.Parameters["sample_count"] = len(combined)
	result.Recommendation = r
	return result, nil
}

// ConfidenceCorrelation computes the Pearson correlation between decision
// confidence and the actual-vs-expected improvement delta. Returns exactly
// 0.0 when fewer than the minimum sample count have both values populated.
func (l *Learning) ConfidenceCorrelation(results []AppliedResult) float64 {
	var confidences, deltas []float64
	for _, r := range results {
		if r.Confidence == 0 && r.ActualImprovement == 0 && r.ExpectedImprovement == 0 {
			continue
		}
		confidences = append(confidences, r.Confidence)
		deltas = append(deltas, r.ActualImprovement-r.ExpectedImprovement)
	}
	if len(confidences) < l.minSamples || len(confidences) < 2 {
		return 0.0
	}

	c := stat.Correlation(confidences, deltas, nil)
	if c != c { // NaN when either series is constant
		return 0.0
	}
	return c
}

func successRateByStrategy(results []AppliedResult) map[Kind]float64 {
	total := make(map[Kind]int)
	successes := make(map[Kind]int)
	for _, r := range results {
		total[r.Strategy]++
		if r.Success {
			successes[r.Strategy]++
		}
	}
	rates := make(map[Kind]float64, len(total))
	for k, n := range total {
		rates[k] = float64(successes[k]) / float64(n)
	}
	return rates
}

func splitPreferences(rates map[Kind]float64) (preferred, avoid []string) {
	type kr struct {
		kind Kind
		rate float64
	}
	ranked := make([]kr, 0, len(rates))
	for k, r := range rates {
		ranked = append(ranked, kr{k, r})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].rate > ranked[j].rate })

	for _, e := range ranked {
		if e.rate >= 0.6 {
			preferred = append(preferred, e.kind.String())
		} else if e.rate < 0.4 {
			avoid = append(avoid, e.kind.String())
		}
	}
	return preferred, avoid
}

func correlationConfidence(correlation float64, samples int) float64 {
	if correlation < 0 {
		correlation = -correlation
	}
	// more samples and stronger correlation both raise confidence
	sampleFactor := float64(samples) / float64(samples+20)
	return correlation * sampleFactor
}
