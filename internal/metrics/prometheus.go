// internal/metrics/prometheus.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bridges the in-process optimization counters to Prometheus.
// All components receive the same instance; a nil *Collectors is a no-op.
type Collectors struct {
	Decisions      *prometheus.CounterVec
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	RetryAttempts  prometheus.Counter
	Degradations   prometheus.Counter
	BreakerState   *prometheus.GaugeVec
	BreakerRejects *prometheus.CounterVec
	TrainerCycles  *prometheus.CounterVec
	SeriesGauge    *prometheus.GaugeVec
}

// NewCollectors registers the optimization metric family on reg
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqtune_optimization_decisions_total",
			Help: "Optimization recommendations issued, by strategy.",
		}, []string{"strategy"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqtune_decorator_cache_hits_total",
			Help: "Caching decorator hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqtune_decorator_cache_misses_total",
			Help: "Caching decorator misses.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqtune_retry_attempts_total",
			Help: "Inner engine invocations made by the retry decorator.",
		}),
		Degradations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reqtune_degradation_alerts_total",
			Help: "Degradation alerts raised by the monitoring decorator.",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqtune_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"dependency"}),
		BreakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqtune_breaker_rejected_total",
			Help: "Calls rejected by an open circuit breaker.",
		}, []string{"dependency"}),
		TrainerCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reqtune_trainer_cycles_total",
			Help: "Model training cycles, by outcome.",
		}, []string{"outcome"}),
		SeriesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "reqtune_metric_value",
			Help: "Latest value per in-process metric series.",
		}, []string{"name"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.Decisions, c.CacheHits, c.CacheMisses, c.RetryAttempts,
			c.Degradations, c.BreakerState, c.BreakerRejects,
			c.TrainerCycles, c.SeriesGauge,
		)
	}
	return c
}

// ObserveDecision counts an issued recommendation
func (c *Collectors) ObserveDecision(strategy string) {
	if c == nil {
		return
	}
	c.Decisions.WithLabelValues(strategy).Inc()
}

// ObserveBreakerState exports a breaker's current state
func (c *Collectors) ObserveBreakerState(dependency string, state int) {
	if c == nil {
		return
	}
	c.BreakerState.WithLabelValues(dependency).Set(float64(state))
}

// ObserveBreakerReject counts a rejected call
func (c *Collectors) ObserveBreakerReject(dependency string) {
	if c == nil {
		return
	}
	c.BreakerRejects.WithLabelValues(dependency).Inc()
}

// ObserveTrainerCycle counts a training cycle by outcome
func (c *Collectors) ObserveTrainerCycle(outcome string) {
	if c == nil {
		return
	}
	c.TrainerCycles.WithLabelValues(outcome).Inc()
}

// Export mirrors the latest value of every store series to Prometheus
func (c *Collectors) Export(s *Store) {
	if c == nil || s == nil {
		return
	}
	for _, name := range s.Names() {
		if stats, ok := s.Stats(name); ok {
			c.SeriesGauge.WithLabelValues(name).Set(stats.Last)
		}
	}
}
