// internal/strategy/strategy.go
package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Well-known operation names claimed by the built-in strategies
const (
	OpCaching        = "caching"
	OpBatching       = "batching"
	OpLearning       = "learning"
	OpCircuitBreaking = "circuit_breaking"
)

// Kind tags an optimization recommendation
type Kind int

const (
	KindNone Kind = iota
	KindEnableCaching
	KindBatchProcessing
	KindCircuitBreaking
	KindMemoryPooling
	KindStreamingOptimization
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindEnableCaching:
		return "enable_caching"
	case KindBatchProcessing:
		return "batch_processing"
	case KindCircuitBreaking:
		return "circuit_breaking"
	case KindMemoryPooling:
		return "memory_pooling"
	case KindStreamingOptimization:
		return "streaming_optimization"
	default:
		return "unknown"
	}
}

// RiskLevel of applying a recommendation
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Recommendation is a proposed optimization, not yet applied.
// Confidence is always in [0,1].
type Recommendation struct {
	ID                   string
	Strategy             Kind
	Confidence           float64
	EstimatedImprovement time.Duration
	Risk                 RiskLevel
	Priority             int
	Parameters           map[string]interface{}
	CreatedAt            time.Time
}

// NewRecommendation creates a recommendation with a fresh id and clamped
// confidence
func NewRecommendation(kind Kind, confidence float64) *Recommendation {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &Recommendation{
		ID:         uuid.New().String(),
		Strategy:   kind,
		Confidence: confidence,
		Parameters: make(map[string]interface{}),
		CreatedAt:  time.Now(),
	}
}

// AppliedResult records what was actually applied for one execution.
// Immutable after creation; appended to the learning strategy's bounded log.
type AppliedResult struct {
	Strategy            Kind
	Success             bool
	ExpectedImprovement float64 // fractional, e.g. 0.2 = 20% faster
	ActualImprovement   float64
	Confidence          float64
	Timestamp           time.Time
}

// Context carries everything a strategy needs to decide
type Context struct {
	Operation    string
	RequestType  string
	RequestValue string
	Analysis     *SnapshotView
	Load         LoadView
	Applied      []AppliedResult
}

// SnapshotView is the slice of the analysis snapshot strategies consume
type SnapshotView struct {
	RequestType    string
	RepeatRate     float64
	ErrorRate      float64
	AvgConcurrency float64
	AvgLatency     time.Duration
	TotalReported  int64
	TotalExecs     int64
	LastUpdated    time.Time
}

// LoadView is the slice of the system snapshot strategies consume
type LoadView struct {
	CPUUtilization    float64
	MemoryUtilization float64
	Throughput        float64
	ErrorRate         float64
	Level             string
}

// Result reports one strategy execution
type Result struct {
	Operation      string
	Success        bool
	Error          string
	Reason         string
	Duration       time.Duration
	Recommendation *Recommendation
}

// Strategy is one polymorphic decision unit
type Strategy interface {
	Name() string
	CanHandle(operation string) bool
	Execute(ctx context.Context, sc *Context) (*Result, error)
}

// Registry maps operation names to strategies. Unmatched operations fall
// through to the declining no-op strategy.
type Registry struct {
	mu       sync.RWMutex
	byOp     map[string]Strategy
	fallback Strategy
}

// NewRegistry creates a registry with a no-op fallback
func NewRegistry() *Registry {
	return &Registry{
		byOp:     make(map[string]Strategy),
		fallback: &Noop{},
	}
}

// Register claims an operation name for a strategy
func (r *Registry) Register(operation string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byOp[operation] = s
}

// Resolve returns the strategy claiming an operation, or the fallback
func (r *Registry) Resolve(operation string) Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byOp[operation]; ok && s.CanHandle(operation) {
		return s
	}
	return r.fallback
}

// Operations lists the registered operation names
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ops := make([]string, 0, len(r.byOp))
	for op := range r.byOp {
		ops = append(ops, op)
	}
	return ops
}
