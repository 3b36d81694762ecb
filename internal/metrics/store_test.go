package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStore_RecordAndRecent(t *testing.T) {
	s := NewStore(5, 0.3, zap.NewNop())

	base := time.Now()
	for i := 0; i < 8; i++ {
		s.Record("latency_ms", float64(i), base.Add(time.Duration(i)*time.Second))
	}

	// Window is bounded at 5, oldest evicted first
	points := s.Recent("latency_ms", 10)
	require.Len(t, points, 5)
	assert.Equal(t, 3.0, points[0].Value)
	assert.Equal(t, 7.0, points[4].Value)

	// n smaller than window
	points = s.Recent("latency_ms", 2)
	require.Len(t, points, 2)
	assert.Equal(t, 6.0, points[0].Value)
	assert.Equal(t, 7.0, points[1].Value)
}

func TestStore_UnknownMetricIsNoData(t *testing.T) {
	s := NewStore(10, 0.3, zap.NewNop())

	assert.Empty(t, s.Recent("nope", 5))
	_, ok := s.Forecast("nope", time.Hour)
	assert.False(t, ok)
	assert.False(t, s.DetectAnomaly("nope"))
	_, ok = s.Stats("nope")
	assert.False(t, ok)
}

func TestEMA_IdempotentUnderRepeatedValue(t *testing.T) {
	for _, alpha := range []float64{0.1, 0.5, 0.9, 1.0} {
		for _, n := range []int{1, 3, 50} {
			values := make([]float64, n)
			for i := range values {
				values[i] = 42.5
			}
			assert.InDelta(t, 42.5, EMA(values, alpha), 1e-12)
		}
	}
}

func TestEMA_Seeding(t *testing.T) {
	assert.Equal(t, 0.0, EMA(nil, 0.5))
	assert.Equal(t, 10.0, EMA([]float64{10}, 0.5))
	// ema = 0.5*20 + 0.5*10 = 15
	assert.InDelta(t, 15.0, EMA([]float64{10, 20}, 0.5), 1e-12)
}

func TestStore_ForecastFallsBackToEMA(t *testing.T) {
	s := NewStore(100, 0.5, zap.NewNop())

	// Fewer than 20 samples: EMA fallback
	now := time.Now()
	s.Record("throughput", 100, now)
	s.Record("throughput", 200, now)

	v, ok := s.Forecast("throughput", time.Hour)
	require.True(t, ok)
	assert.InDelta(t, 150.0, v, 1e-9)
}

func TestStore_ForecastPrefersMatchingHourAndWeekday(t *testing.T) {
	s := NewStore(200, 0.5, zap.NewNop())

	target := time.Now() // horizon 0 keeps the target in the current hour
	matching := target
	offHour := target.Add(-5 * time.Hour)

	for i := 0; i < 15; i++ {
		s.Record("load", 10, matching)
	}
	for i := 0; i < 15; i++ {
		s.Record("load", 1000, offHour)
	}

	v, ok := s.Forecast("load", 0)
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-9)
}

func TestStore_DetectAnomaly(t *testing.T) {
	s := NewStore(100, 0.3, zap.NewNop())
	now := time.Now()

	// Stable baseline with mild jitter, then a large spike
	jitter := []float64{100, 101, 99, 100, 102, 98, 100, 101, 99, 100}
	for _, v := range jitter {
		s.Record("latency", v, now)
	}
	assert.False(t, s.DetectAnomaly("latency"))

	s.Record("latency", 500, now)
	assert.True(t, s.DetectAnomaly("latency"))
}

func TestStore_AnomalyNeedsBaseline(t *testing.T) {
	s := NewStore(100, 0.3, zap.NewNop())
	now := time.Now()
	for i := 0; i < 5; i++ {
		s.Record("sparse", 1, now)
	}
	s.Record("sparse", 10000, now)
	assert.False(t, s.DetectAnomaly("sparse"))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(100, 0.3, zap.NewNop())
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := []string{"a", "b", "c"}[n%3]
			for j := 0; j < 100; j++ {
				s.Record(name, float64(j), now)
				s.Recent(name, 10)
				s.DetectAnomaly(name)
			}
		}(i)
	}
	wg.Wait()

	stats, ok := s.Stats("a")
	require.True(t, ok)
	assert.Equal(t, 100, stats.Count)
}

func TestStore_CheckHealth(t *testing.T) {
	s := NewStore(10, 0.3, zap.NewNop())
	result := s.CheckHealth(context.Background())
	assert.True(t, result.Healthy)
	assert.NotEmpty(t, result.Warnings)

	s.Record("x", 1, time.Now())
	result = s.CheckHealth(context.Background())
	assert.True(t, result.Healthy)
	assert.Empty(t, result.Warnings)
}

func TestPercentile(t *testing.T) {
	values := make([]float64, 100)
	for i := range values {
		values[i] = float64(i + 1)
	}
	assert.InDelta(t, 95, Percentile(values, 0.95), 1.0)
	assert.Equal(t, 0.0, Percentile(nil, 0.95))
}
