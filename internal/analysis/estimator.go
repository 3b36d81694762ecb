// internal/analysis/estimator.go
package analysis

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/metrics"
)

// Estimator derives load level and per-protocol connection counts from the
// analysis table and metrics store when no direct instrumentation exists.
// Every estimate is clamped to [0, maxConnections] and internal failures
// recover to the static fallback.
type Estimator struct {
	table          *Table
	store          *metrics.Store
	sampler        *SystemSampler
	maxConnections int
	logger         *zap.Logger
}

// Load level throughput boundaries, requests/second
const (
	idleThroughput   = 1.0
	lowThroughput    = 10.0
	mediumThroughput = 100.0
	highThroughput   = 500.0
)

// requests slower than this are treated as queue/async-bound
const asyncLatencyCutoff = time.Second

const defaultMaxConnections = 10000

// NewEstimator creates an estimator over the shared table and store
func NewEstimator(table *Table, store *metrics.Store, sampler *SystemSampler, maxConnections int, logger *zap.Logger) *Estimator {
	if maxConnections <= 0 {
		maxConnections = defaultMaxConnections
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		table:          table,
		store:          store,
		sampler:        sampler,
		maxConnections: maxConnections,
		logger:         logger,
	}
}

// LoadLevel classifies current throughput
func (e *Estimator) LoadLevel(ctx context.Context) LoadLevel {
	snap := e.sampler.Snapshot(ctx)
	return classifyThroughput(snap.Throughput)
}

func classifyThroughput(rps float64) LoadLevel {
	switch {
	case rps < idleThroughput:
		return LoadIdle
	case rps < lowThroughput:
		return LoadLow
	case rps < mediumThroughput:
		return LoadMedium
	case rps < highThroughput:
		return LoadHigh
	default:
		return LoadCritical
	}
}

// Connections estimates the current connection count for a protocol kind.
// Layered fallbacks: direct metric, pattern-based estimate, historical
// forecast, then a processor-count-derived static value.
func (e *Estimator) Connections(ctx context.Context, kind ConnectionKind) (n int) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("connection estimator recovered", zap.Any("panic", r))
			n = e.staticFallback(kind)
		}
		n = e.clamp(n)
	}()

	if ctx.Err() != nil {
		return e.staticFallback(kind)
	}

	// (a) direct metric if instrumented
	name := "connections." + kind.String()
	if stats, ok := e.store.Stats(name); ok {
		return int(stats.Last)
	}

	// (b) pattern-based estimate from request shapes
	if n, ok := e.patternEstimate(kind); ok {
		return n
	}

	// (c) historical forecast
	if v, ok := e.store.Forecast(name, 0); ok {
		return int(v)
	}

	// (d) static last resort
	return e.staticFallback(kind)
}

func (e *Estimator) patternEstimate(kind ConnectionKind) (int, bool) {
	types := e.table.Types()
	if len(types) == 0 {
		return 0, false
	}

	var total float64
	for _, rt := range types {
		snap, ok := e.table.Entry(rt)
		if !ok {
			continue
		}
		switch kind {
		case ConnQueue:
			// long-lived/async requests hold queue connections
			if snap.AvgLatency > asyncLatencyCutoff {
				total += snap.AvgConcurrency
			}
		case ConnDatabase:
			total += avgDatabaseCalls(snap) * snap.AvgConcurrency
		case ConnExternalAPI:
			total += avgExternalCalls(snap) * snap.AvgConcurrency
		case ConnHTTP:
			total += snap.AvgConcurrency
		case ConnWebSocket:
			// no request-shape signal for websockets; defer to lower layers
			return 0, false
		}
	}
	if total <= 0 {
		return 0, false
	}
	return int(total + 0.5), true
}

func avgDatabaseCalls(snap *Snapshot) float64 {
	if len(snap.History) == 0 {
		return 0
	}
	var sum int
	for _, m := range snap.History {
		sum += m.DatabaseCalls
	}
	return float64(sum) / float64(len(snap.History))
}

func avgExternalCalls(snap *Snapshot) float64 {
	if len(snap.History) == 0 {
		return 0
	}
	var sum int
	for _, m := range snap.History {
		sum += m.ExternalAPICalls
	}
	return float64(sum) / float64(len(snap.History))
}

func (e *Estimator) staticFallback(kind ConnectionKind) int {
	procs := runtime.NumCPU()
	switch kind {
	case ConnHTTP:
		return procs * 4
	case ConnDatabase:
		return procs * 2
	case ConnQueue, ConnExternalAPI:
		return procs
	case ConnWebSocket:
		return procs * 8
	default:
		return procs
	}
}

func (e *Estimator) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > e.maxConnections {
		return e.maxConnections
	}
	return n
}
