// internal/engine/insights.go
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/reqtune/reqtune/internal/analysis"
	"github.com/reqtune/reqtune/internal/breaker"
	"github.com/reqtune/reqtune/internal/health"
	"github.com/reqtune/reqtune/internal/predictor"
)

// TypeInsight summarizes one request type for operators
type TypeInsight struct {
	RequestType    string        `json:"request_type"`
	AvgLatency     time.Duration `json:"avg_latency"`
	ErrorRate      float64       `json:"error_rate"`
	RepeatRate     float64       `json:"repeat_rate"`
	AvgConcurrency float64       `json:"avg_concurrency"`
	TotalReported  int64         `json:"total_reported"`
}

// BreakerInsight summarizes one breaker for operators
type BreakerInsight struct {
	Dependency   string  `json:"dependency"`
	State        string  `json:"state"`
	FailureRate  float64 `json:"failure_rate"`
	Availability float64 `json:"availability"`
}

// Insights is the aggregated system performance view
type Insights struct {
	Window          time.Duration               `json:"window"`
	GeneratedAt     time.Time                   `json:"generated_at"`
	Load            analysis.SystemLoadSnapshot `json:"load"`
	LoadLevel       string                      `json:"load_level"`
	TopRequestTypes []TypeInsight               `json:"top_request_types"`
	Breakers        []BreakerInsight            `json:"breakers"`
	Connections     map[string]int              `json:"connections"`
	ModelStatistics predictor.Statistics        `json:"model_statistics"`
}

// SystemInsights aggregates the current view of load, request types,
// breakers and model quality over the requested window
func (e *Engine) SystemInsights(ctx context.Context, window time.Duration) (*Insights, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, invalidArg("window must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ins := &Insights{
		Window:      window,
		GeneratedAt: time.Now(),
		Connections: make(map[string]int),
	}

	if e.sampler != nil {
		ins.Load = e.sampler.Snapshot(ctx)
	}
	if e.estimator != nil {
		ins.LoadLevel = e.estimator.LoadLevel(ctx).String()
		for _, kind := range []analysis.ConnectionKind{
			analysis.ConnHTTP, analysis.ConnWebSocket, analysis.ConnDatabase,
			analysis.ConnQueue, analysis.ConnExternalAPI,
		} {
			ins.Connections[kind.String()] = e.estimator.Connections(ctx, kind)
		}
	}

	cutoff := time.Now().Add(-window)
	for _, rt := range e.table.Types() {
		snap, ok := e.table.Entry(rt)
		if !ok || snap.LastUpdated.Before(cutoff) {
			continue
		}
		ins.TopRequestTypes = append(ins.TopRequestTypes, TypeInsight{
			RequestType:    snap.RequestType,
			AvgLatency:     snap.AvgLatency,
			ErrorRate:      snap.ErrorRate,
			RepeatRate:     snap.RepeatRate,
			AvgConcurrency: snap.AvgConcurrency,
			TotalReported:  snap.TotalReported,
		})
	}
	sort.Slice(ins.TopRequestTypes, func(i, j int) bool {
		return ins.TopRequestTypes[i].TotalReported > ins.TopRequestTypes[j].TotalReported
	})
	if len(ins.TopRequestTypes) > 20 {
		ins.TopRequestTypes = ins.TopRequestTypes[:20]
	}

	if e.breakers != nil {
		for _, b := range e.breakers.All() {
			m := b.Metrics()
			ins.Breakers = append(ins.Breakers, BreakerInsight{
				Dependency:   b.Name(),
				State:        m.State.String(),
				FailureRate:  m.FailureRate(),
				Availability: m.Availability(),
			})
			e.collectors.ObserveBreakerState(b.Name(), int(m.State))
		}
	}

	if e.trainer != nil {
		ins.ModelStatistics = e.trainer.Statistics()
	}

	e.collectors.Export(e.store)
	return ins, nil
}

// CheckHealth combines component checks into the engine's composite score
func (e *Engine) CheckHealth(ctx context.Context) health.Result {
	start := time.Now()

	if e.disposed.Load() {
		result := health.Result{Status: health.StatusUnhealthy}
		result.AddError("engine disposed")
		result.Duration = time.Since(start)
		return result
	}

	result := health.Healthy()
	factors := health.Factors{Performance: 1, Reliability: 1, Resource: 1, Freshness: 1}

	tableRes := e.table.CheckHealth(ctx)
	storeRes := e.store.CheckHealth(ctx)
	result.Warnings = append(result.Warnings, tableRes.Warnings...)
	result.Warnings = append(result.Warnings, storeRes.Warnings...)
	factors.Performance = (tableRes.Score + storeRes.Score) / 2

	if e.breakers != nil {
		open := 0
		all := e.breakers.All()
		for _, b := range all {
			if b.State() == breaker.StateOpen {
				open++
				result.AddWarning("breaker open: %s", b.Name())
			}
		}
		if len(all) > 0 {
			factors.Reliability = 1 - float64(open)/float64(len(all))
		}
	}

	if e.sampler != nil {
		load := e.sampler.Snapshot(ctx)
		factors.Resource = 1 - (load.CPUUtilization+load.MemoryUtilization)/2
	}

	if e.trainer != nil {
		trainerRes := e.trainer.CheckHealth(ctx)
		result.Warnings = append(result.Warnings, trainerRes.Warnings...)
		factors.Freshness = trainerRes.Score
		if !trainerRes.Healthy {
			result.Degrade(0.5)
		}
	}

	result.Score = e.scorer.Score(factors)
	if result.Score < 0.5 && result.Status == health.StatusHealthy {
		result.Status = health.StatusDegraded
	}
	result.Duration = time.Since(start)
	return result
}
