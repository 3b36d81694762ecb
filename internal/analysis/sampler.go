// internal/analysis/sampler.go
package analysis

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// SystemSampler produces fresh SystemLoadSnapshots from host utilization
// and the analysis table. Sampling failures fall back to static values,
// never propagate: the snapshot is a heuristic input, not a correctness
// input.
type SystemSampler struct {
	table  *Table
	logger *zap.Logger

	// test seams
	cpuPercent func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	memUsed    func(ctx context.Context) (float64, error)
}

const (
	fallbackCPU    = 0.5
	fallbackMemory = 0.5
)

// NewSystemSampler creates a sampler backed by gopsutil
func NewSystemSampler(table *Table, logger *zap.Logger) *SystemSampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemSampler{
		table:  table,
		logger: logger,
		cpuPercent: func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			return cpu.PercentWithContext(ctx, interval, percpu)
		},
		memUsed: func(ctx context.Context) (float64, error) {
			vm, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return vm.UsedPercent / 100, nil
		},
	}
}

// Snapshot samples current system load. Never returns an error; individual
// probe failures degrade to static fallbacks.
func (s *SystemSampler) Snapshot(ctx context.Context) SystemLoadSnapshot {
	snap := SystemLoadSnapshot{
		CPUUtilization:    fallbackCPU,
		MemoryUtilization: fallbackMemory,
		PoolUtilization:   make(map[string]float64),
		Timestamp:         time.Now(),
	}

	if pcts, err := s.cpuPercent(ctx, 0, false); err == nil && len(pcts) > 0 {
		snap.CPUUtilization = pcts[0] / 100
	} else if err != nil {
		s.logger.Debug("cpu sample failed, using fallback", zap.Error(err))
	}

	if used, err := s.memUsed(ctx); err == nil {
		snap.MemoryUtilization = used
	} else {
		s.logger.Debug("memory sample failed, using fallback", zap.Error(err))
	}

	if s.table != nil {
		var window time.Duration
		var execs, failed int64
		var sumLatency time.Duration
		var samples int64
		var active int

		for _, rt := range s.table.Types() {
			snapE, ok := s.table.Entry(rt)
			if !ok {
				continue
			}
			for _, m := range snapE.History {
				execs += m.TotalExecutions
				failed += m.FailedExecutions
				if m.SampleWindow > window {
					window = m.SampleWindow
				}
			}
			sumLatency += snapE.AvgLatency
			samples++
			active += int(snapE.AvgConcurrency + 0.5)
		}

		if window <= 0 {
			window = time.Minute
		}
		snap.Throughput = float64(execs) / window.Seconds()
		if execs > 0 {
			snap.ErrorRate = float64(failed) / float64(execs)
		}
		if samples > 0 {
			snap.AvgResponseTime = sumLatency / time.Duration(samples)
		}
		snap.ActiveRequests = active
	}

	snap.PoolUtilization["cpu"] = snap.CPUUtilization
	snap.PoolUtilization["memory"] = snap.MemoryUtilization
	return snap
}
