// internal/strategy/batching.go
package strategy

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Batching evaluates whether load, throughput, and per-type repeat volume
// justify batch processing, and sizes the batch within configured bounds.
// It declines under CPU/memory pressure or low throughput.
type Batching struct {
	minBatch int
	maxBatch int
	window   time.Duration
	logger   *zap.Logger
}

const (
	batchCPUCeiling    = 0.85
	batchMemoryCeiling = 0.90
	batchMinThroughput = 5.0 // requests/second
)

// NewBatching creates the batching strategy
func NewBatching(minBatch, maxBatch int, window time.Duration, logger *zap.Logger) *Batching {
	if minBatch <= 0 {
		minBatch = 2
	}
	if maxBatch < minBatch {
		maxBatch = minBatch * 50
	}
	if window <= 0 {
		window = 50 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batching{minBatch: minBatch, maxBatch: maxBatch, window: window, logger: logger}
}

// Name implements Strategy
func (b *Batching) Name() string { return "batching" }

// CanHandle implements Strategy
func (b *Batching) CanHandle(operation string) bool { return operation == OpBatching }

// Execute implements Strategy
func (b *Batching) Execute(ctx context.Context, sc *Context) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Operation: sc.Operation, Success: true}
	defer func() { result.Duration = time.Since(start) }()

	if sc.Load.CPUUtilization > batchCPUCeiling {
		result.Reason = "cpu pressure too high for batching"
		return result, nil
	}
	if sc.Load.MemoryUtilization > batchMemoryCeiling {
		result.Reason = "memory pressure too high for batching"
		return result, nil
	}
	if sc.Load.Throughput < batchMinThroughput {
		result.Reason = "throughput too low to fill batches"
		return result, nil
	}
	if sc.Analysis == nil || sc.Analysis.RepeatRate < 0.5 {
		result.Reason = "request type does not repeat enough"
		return result, nil
	}

	size := b.BatchSize(sc.Analysis, sc.Load)
	confidence := sc.Analysis.RepeatRate * (1 - sc.Load.CPUUtilization)

	r := NewRecommendation(KindBatchProcessing, confidence)
	r.Risk = RiskMedium
	r.Priority = 1
	// batching amortizes per-call overhead across the batch
	r.EstimatedImprovement = sc.Analysis.AvgLatency * time.Duration(size/4)
	r.Parameters["batch_size"] = size
	r.Parameters["window"] = b.window.String()
	result.Recommendation = r
	return result, nil
}

// BatchSize derives a batch size from repeat volume and load, bounded by
// the configured min/max
func (b *Batching) BatchSize(snap *SnapshotView, load LoadView) int {
	// roughly one window's worth of arrivals
	size := int(load.Throughput * b.window.Seconds() * snap.AvgConcurrency)
	if size < b.minBatch {
		size = b.minBatch
	}
	if size > b.maxBatch {
		size = b.maxBatch
	}
	return size
}
