// internal/analysis/table.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/health"
	"github.com/reqtune/reqtune/internal/metrics"
)

// entry accumulates outcomes for one request type. Appends and evictions
// happen under the entry's own lock so the history stays bounded even
// under concurrent reporters.
type entry struct {
	mu            sync.Mutex
	history       []ExecutionMetrics
	totalReported int64
	totalExecs    int64
	totalFailed   int64
	sumConcurrent int64
	sumLatency    time.Duration
	lastUpdated   time.Time
}

// Table is the per-request-type accumulator of execution outcomes.
// Entries are keyed by a stable request-type identifier assigned at
// registration time, never by runtime type identity.
type Table struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	maxHistory int
	store      *metrics.Store
	logger     *zap.Logger
}

const defaultMaxHistory = 200

// NewTable creates an analysis table with a bounded per-type history
func NewTable(maxHistory int, store *metrics.Store, logger *zap.Logger) *Table {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		entries:    make(map[string]*entry),
		maxHistory: maxHistory,
		store:      store,
		logger:     logger,
	}
}

func (t *Table) getOrCreate(requestType string) *entry {
	t.mu.RLock()
	e, ok := t.entries[requestType]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[requestType]; ok {
		return e
	}
	e = &entry{history: make([]ExecutionMetrics, 0, t.maxHistory)}
	t.entries[requestType] = e
	return e
}

// ReportOutcome appends an execution outcome to the request type's history.
// The oldest sample is evicted when the bounded history overflows.
func (t *Table) ReportOutcome(requestType string, m ExecutionMetrics) error {
	if requestType == "" {
		return errors.New("analysis: request type is required")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	e := t.getOrCreate(requestType)
	e.mu.Lock()
	e.history = append(e.history, m)
	if len(e.history) > t.maxHistory {
		e.history = e.history[1:]
	}
	e.totalReported++
	e.totalExecs += m.TotalExecutions
	e.totalFailed += m.FailedExecutions
	e.sumConcurrent += int64(m.ConcurrentExecutions)
	e.sumLatency += m.AverageLatency
	e.lastUpdated = m.Timestamp
	e.mu.Unlock()

	if t.store != nil {
		t.store.Record("request."+requestType+".latency_ms",
			float64(m.AverageLatency.Milliseconds()), m.Timestamp)
		t.store.Record("request."+requestType+".error_rate", m.ErrorRate(), m.Timestamp)
		t.store.Record("request."+requestType+".concurrency",
			float64(m.ConcurrentExecutions), m.Timestamp)
	}
	return nil
}

// Entry returns a copied snapshot of one request type's analysis
func (t *Table) Entry(requestType string) (*Snapshot, bool) {
	t.mu.RLock()
	e, ok := t.entries[requestType]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.totalReported == 0 {
		return nil, false
	}

	snap := &Snapshot{
		RequestType:   requestType,
		History:       make([]ExecutionMetrics, len(e.history)),
		TotalReported: e.totalReported,
		LastUpdated:   e.lastUpdated,
	}
	copy(snap.History, e.history)

	if e.totalExecs > 0 {
		snap.ErrorRate = float64(e.totalFailed) / float64(e.totalExecs)
		// repeat rate: executions per reported sample, normalized to [0,1]
		repeats := float64(e.totalExecs) / float64(e.totalReported)
		snap.RepeatRate = repeats / (repeats + 1)
	}
	snap.AvgConcurrency = float64(e.sumConcurrent) / float64(e.totalReported)
	snap.AvgLatency = e.sumLatency / time.Duration(e.totalReported)
	return snap, true
}

// Reset drops one request type's accumulated history
func (t *Table) Reset(requestType string) {
	t.mu.Lock()
	delete(t.entries, requestType)
	t.mu.Unlock()
	t.logger.Info("analysis entry reset", zap.String("request_type", requestType))
}

// Types returns the registered request type identifiers
func (t *Table) Types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	types := make([]string, 0, len(t.entries))
	for k := range t.entries {
		types = append(types, k)
	}
	return types
}

// Totals returns aggregate executions and failures across all types
func (t *Table) Totals() (executions, failures int64) {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		executions += e.totalExecs
		failures += e.totalFailed
		e.mu.Unlock()
	}
	return executions, failures
}

// CheckHealth reports table health
func (t *Table) CheckHealth(ctx context.Context) health.Result {
	start := time.Now()
	result := health.Healthy()

	t.mu.RLock()
	count := len(t.entries)
	t.mu.RUnlock()

	result.Status = fmt.Sprintf("%s (%d request types tracked)", result.Status, count)
	if count == 0 {
		result.AddWarning("no execution outcomes reported yet")
		result.Degrade(0.8)
	}
	result.Duration = time.Since(start)
	return result
}
