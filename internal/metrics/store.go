// internal/metrics/store.go
package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reqtune/reqtune/internal/health"
)

// Point is a single observation in a time series
type Point struct {
	Timestamp time.Time
	Value     float64
}

// SeriesStats summarizes a series' rolling window
type SeriesStats struct {
	Count int
	Mean  float64
	EMA   float64
	P95   float64
	P99   float64
	Last  float64
}

// series holds one metric's rolling window. Each series carries its own
// lock so writers to different metrics never contend.
type series struct {
	mu      sync.Mutex
	points  []Point
	ema     float64
	emaSeen bool
}

// Store is a rolling, in-memory time-series store keyed by metric name.
// Lookups on unknown names return zero values, never errors.
type Store struct {
	mu        sync.RWMutex
	series    map[string]*series
	maxPoints int
	alpha     float64
	logger    *zap.Logger
}

const (
	defaultMaxPoints = 1000
	defaultAlpha     = 0.3

	// minimum samples before hour-of-day/weekday pattern matching kicks in
	patternMinSamples = 20

	// minimum samples before anomaly detection has a usable baseline
	anomalyMinSamples = 10
	anomalySigma      = 3.0
)

// NewStore creates a store with a bounded window per metric
func NewStore(maxPoints int, alpha float64, logger *zap.Logger) *Store {
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	if alpha <= 0 || alpha > 1 {
		alpha = defaultAlpha
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		series:    make(map[string]*series),
		maxPoints: maxPoints,
		alpha:     alpha,
		logger:    logger,
	}
}

func (s *Store) get(name string) (*series, bool) {
	s.mu.RLock()
	ser, ok := s.series[name]
	s.mu.RUnlock()
	return ser, ok
}

func (s *Store) getOrCreate(name string) *series {
	if ser, ok := s.get(name); ok {
		return ser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ser, ok := s.series[name]; ok {
		return ser
	}
	ser := &series{points: make([]Point, 0, s.maxPoints)}
	s.series[name] = ser
	return ser
}

// Record appends an observation, evicting the oldest point on overflow
func (s *Store) Record(name string, value float64, ts time.Time) {
	ser := s.getOrCreate(name)

	ser.mu.Lock()
	defer ser.mu.Unlock()

	ser.points = append(ser.points, Point{Timestamp: ts, Value: value})
	if len(ser.points) > s.maxPoints {
		ser.points = ser.points[1:]
	}

	if !ser.emaSeen {
		ser.ema = value
		ser.emaSeen = true
	} else {
		ser.ema = s.alpha*value + (1-s.alpha)*ser.ema
	}
}

// Recent returns up to n most recent points, oldest first. Unknown names
// return an empty slice.
func (s *Store) Recent(name string, n int) []Point {
	ser, ok := s.get(name)
	if !ok || n <= 0 {
		return nil
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	start := len(ser.points) - n
	if start < 0 {
		start = 0
	}
	out := make([]Point, len(ser.points)-start)
	copy(out, ser.points[start:])
	return out
}

// EMA computes an exponential moving average over values, seeded with the
// first observation: ema_t = alpha*v_t + (1-alpha)*ema_{t-1}.
func EMA(values []float64, alpha float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// Forecast predicts the metric's value a horizon ahead. When the series has
// at least 20 samples it favors points from the same hour of day and day of
// week as the forecast target; otherwise it falls back to the EMA over all
// points. The second return is false when the series has no data.
func (s *Store) Forecast(name string, horizon time.Duration) (float64, bool) {
	ser, ok := s.get(name)
	if !ok {
		return 0, false
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	if len(ser.points) == 0 {
		return 0, false
	}

	if len(ser.points) >= patternMinSamples {
		target := time.Now().Add(horizon)
		var sum float64
		var n int
		for _, p := range ser.points {
			if p.Timestamp.Hour() == target.Hour() && p.Timestamp.Weekday() == target.Weekday() {
				sum += p.Value
				n++
			}
		}
		if n > 0 {
			return sum / float64(n), true
		}
	}

	return ser.ema, true
}

// DetectAnomaly reports whether the latest observation deviates more than
// three standard deviations from the window mean. Series with fewer than
// ten samples never flag.
func (s *Store) DetectAnomaly(name string) bool {
	ser, ok := s.get(name)
	if !ok {
		return false
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	n := len(ser.points)
	if n < anomalyMinSamples {
		return false
	}

	values := make([]float64, 0, n-1)
	for _, p := range ser.points[:n-1] {
		values = append(values, p.Value)
	}
	mean, stddev := meanStdDev(values)
	if stddev == 0 {
		return false
	}

	last := ser.points[n-1].Value
	dev := last - mean
	if dev < 0 {
		dev = -dev
	}
	return dev > anomalySigma*stddev
}

// Stats returns summary statistics for a series; false when no data exists
func (s *Store) Stats(name string) (SeriesStats, bool) {
	ser, ok := s.get(name)
	if !ok {
		return SeriesStats{}, false
	}

	ser.mu.Lock()
	defer ser.mu.Unlock()

	if len(ser.points) == 0 {
		return SeriesStats{}, false
	}

	values := make([]float64, len(ser.points))
	for i, p := range ser.points {
		values[i] = p.Value
	}
	mean, _ := meanStdDev(values)

	return SeriesStats{
		Count: len(values),
		Mean:  mean,
		EMA:   ser.ema,
		P95:   Percentile(values, 0.95),
		P99:   Percentile(values, 0.99),
		Last:  values[len(values)-1],
	}, true
}

// Names returns all known metric names
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	return names
}

// CheckHealth reports store health
func (s *Store) CheckHealth(ctx context.Context) health.Result {
	start := time.Now()
	result := health.Healthy()

	s.mu.RLock()
	count := len(s.series)
	s.mu.RUnlock()

	if count == 0 {
		result.AddWarning("no metrics recorded yet")
		result.Degrade(0.8)
	}
	result.Duration = time.Since(start)
	return result
}
