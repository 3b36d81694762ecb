// internal/strategy/caching.go
package strategy

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// CacheKeyStrategy selects how cache keys are derived from requests
type CacheKeyStrategy int

const (
	KeyFullRequest CacheKeyStrategy = iota
	KeyTypeOnly
	KeySelectedFields
)

func (k CacheKeyStrategy) String() string {
	switch k {
	case KeyFullRequest:
		return "full_request"
	case KeyTypeOnly:
		return "type_only"
	case KeySelectedFields:
		return "selected_fields"
	default:
		return "unknown"
	}
}

// AccessPattern describes observed access behavior for one request type
type AccessPattern struct {
	AccessFrequency     float64       // accesses per minute
	TimeSinceLastAccess time.Duration
	DataVolatility      float64 // 0 stable .. 1 churning
}

// CachingRecommendation is the shouldCache decision surface
type CachingRecommendation struct {
	ShouldCache bool
	Confidence  float64
	KeyStrategy CacheKeyStrategy
	TTL         time.Duration
	Reason      string
}

// Caching evaluates access frequency and recency against a minimum hit-rate
// threshold and derives a cache-key strategy plus TTL from observed data
// volatility.
type Caching struct {
	minHitRate     float64
	minAccessCount int64
	logger         *zap.Logger
}

// NewCaching creates the caching strategy
func NewCaching(minHitRate float64, minAccessCount int64, logger *zap.Logger) *Caching {
	if minHitRate <= 0 || minHitRate > 1 {
		minHitRate = 0.3
	}
	if minAccessCount <= 0 {
		minAccessCount = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Caching{minHitRate: minHitRate, minAccessCount: minAccessCount, logger: logger}
}

// Name implements Strategy
func (c *Caching) Name() string { return "caching" }

// CanHandle implements Strategy
func (c *Caching) CanHandle(operation string) bool { return operation == OpCaching }

// Execute implements Strategy
func (c *Caching) Execute(ctx context.Context, sc *Context) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{Operation: sc.Operation, Success: true}
	defer func() { result.Duration = time.Since(start) }()

	if sc.Analysis == nil || sc.Analysis.TotalExecs < c.minAccessCount {
		result.Reason = "insufficient access history"
		return result, nil
	}

	snap := sc.Analysis
	window := time.Minute
	if !snap.LastUpdated.IsZero() {
		if since := time.Since(snap.LastUpdated); since > window {
			window = since
		}
	}

	pattern := AccessPattern{
		AccessFrequency:     float64(snap.TotalExecs) / window.Minutes(),
		TimeSinceLastAccess: time.Since(snap.LastUpdated),
		DataVolatility:      snap.ErrorRate, // churn proxy when no direct signal
	}

	rec := c.Evaluate(snap.RequestType, []AccessPattern{pattern})
	if !rec.ShouldCache {
		result.Reason = rec.Reason
		return result, nil
	}

	r := NewRecommendation(KindEnableCaching, rec.Confidence)
	r.EstimatedImprovement = snap.AvgLatency // a hit skips the full execution
	r.Risk = RiskLow
	if rec.KeyStrategy == KeyTypeOnly {
		// type-only keys collapse distinct requests; riskier
		r.Risk = RiskMedium
	}
	r.Priority = 2
	r.Parameters["cache_key_strategy"] = rec.KeyStrategy.String()
	r.Parameters["ttl"] = rec.TTL.String()
	r.Parameters["min_hit_rate"] = c.minHitRate
	result.Recommendation = r
	return result, nil
}

// Evaluate scores access patterns for cacheability. Confidence is
// non-decreasing in access frequency and non-increasing in time since last
// access.
func (c *Caching) Evaluate(requestType string, patterns []AccessPattern) *CachingRecommendation {
	if len(patterns) == 0 {
		return &CachingRecommendation{Reason: "no access patterns supplied"}
	}

	var freq, volatility float64
	minRecency := time.Duration(math.MaxInt64)
	for _, p := range patterns {
		freq += p.AccessFrequency
		volatility += p.DataVolatility
		if p.TimeSinceLastAccess < minRecency {
			minRecency = p.TimeSinceLastAccess
		}
	}
	volatility /= float64(len(patterns))

	// frequency saturates at ~60/min; recency decays over 10 minutes
	freqScore := freq / (freq + 60)
	recencyScore := 1.0 / (1.0 + minRecency.Minutes()/10)
	hitRateEstimate := freqScore * recencyScore

	rec := &CachingRecommendation{
		Confidence: hitRateEstimate * (1 - volatility),
	}
	if hitRateEstimate < c.minHitRate {
		rec.Reason = "estimated hit rate below minimum"
		return rec
	}

	rec.ShouldCache = true
	rec.KeyStrategy = keyStrategyFor(volatility, freq)
	rec.TTL = ttlFor(volatility)
	rec.Reason = "access pattern supports caching"
	return rec
}

// keyStrategyFor picks the key derivation: stable high-volume data can share
// a type-level entry, volatile data needs full-request keys
func keyStrategyFor(volatility, freq float64) CacheKeyStrategy {
	switch {
	case volatility < 0.05 && freq > 100:
		return KeyTypeOnly
	case volatility < 0.3:
		return KeySelectedFields
	default:
		return KeyFullRequest
	}
}

// ttlFor derives TTL from volatility: stable data lives longer
func ttlFor(volatility float64) time.Duration {
	const (
		minTTL = 10 * time.Second
		maxTTL = 10 * time.Minute
	)
	ttl := time.Duration(float64(maxTTL) * (1 - volatility))
	if ttl < minTTL {
		ttl = minTTL
	}
	return ttl
}
