// internal/engine/caching_decorator.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/reqtune/reqtune/internal/metrics"
	"github.com/reqtune/reqtune/internal/strategy"
)

// CachingOptimizer memoizes successful results for a configurable duration,
// keyed deterministically from (operation, requestType, requestValue).
// Cache hits bypass the inner engine entirely.
type CachingOptimizer struct {
	inner      Optimizer
	ttl        time.Duration
	collectors *metrics.Collectors

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	result  strategy.Result
	expires time.Time
}

// WithCaching wraps inner with result memoization
func WithCaching(inner Optimizer, ttl time.Duration, collectors *metrics.Collectors) *CachingOptimizer {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingOptimizer{
		inner:      inner,
		ttl:        ttl,
		collectors: collectors,
		entries:    make(map[string]cacheEntry),
	}
}

func cacheKey(sc *strategy.Context) string {
	return sc.Operation + "|" + sc.RequestType + "|" + sc.RequestValue
}

// Optimize implements Optimizer
func (c *CachingOptimizer) Optimize(ctx context.Context, sc *strategy.Context) (*strategy.Result, error) {
	if sc == nil {
		return nil, invalidArg("optimization context is required")
	}
	key := cacheKey(sc)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expires) {
		c.mu.Unlock()
		if c.collectors != nil {
			c.collectors.CacheHits.Inc()
		}
		cached := e.result // return by value so callers cannot mutate the entry
		return &cached, nil
	}
	c.mu.Unlock()

	if c.collectors != nil {
		c.collectors.CacheMisses.Inc()
	}

	res, err := c.inner.Optimize(ctx, sc)
	if err != nil {
		return nil, err
	}

	if res.Success {
		c.mu.Lock()
		c.entries[key] = cacheEntry{result: *res, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()
	}
	return res, nil
}

// Invalidate drops one memoized entry
func (c *CachingOptimizer) Invalidate(operation, requestType, requestValue string) {
	c.mu.Lock()
	delete(c.entries, operation+"|"+requestType+"|"+requestValue)
	c.mu.Unlock()
}
