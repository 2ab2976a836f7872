package flow

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the Prometheus-compatible instrumentation surface for the
// engine: scheduler queue depth and active execution count as gauges, node
// duration as a histogram, and cache hits, circuit trips, and recorded
// spend as counters. All names are namespaced "flowcore_".
type Metrics struct {
	schedulerQueueDepth prometheus.Gauge
	activeExecutions    prometheus.Gauge

	nodeDuration *prometheus.HistogramVec

	cacheHits    *prometheus.CounterVec
	circuitTrips *prometheus.CounterVec
	spendTotal   prometheus.Counter

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics registers all engine metrics with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.schedulerQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowcore",
		Name:      "scheduler_queue_depth",
		Help:      "Number of nodes in the current topological level awaiting dispatch",
	})

	m.activeExecutions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "flowcore",
		Name:      "active_executions",
		Help:      "Number of node executions currently in flight",
	})

	m.nodeDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowcore",
		Name:      "node_duration_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	}, []string{"node_type", "status"})

	m.cacheHits = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowcore",
		Name:      "cache_hits_total",
		Help:      "Cache lookups by outcome (hit or miss)",
	}, []string{"outcome"})

	m.circuitTrips = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowcore",
		Name:      "circuit_trips_total",
		Help:      "Circuit breaker trips by node id",
	}, []string{"node_id"})

	m.spendTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "flowcore",
		Name:      "spend_total",
		Help:      "Cumulative recorded cost across all executions",
	})

	return m
}

func (m *Metrics) SetSchedulerQueueDepth(n int) {
	if !m.isEnabled() {
		return
	}
	m.schedulerQueueDepth.Set(float64(n))
}

func (m *Metrics) SetActiveExecutions(n int) {
	if !m.isEnabled() {
		return
	}
	m.activeExecutions.Set(float64(n))
}

func (m *Metrics) ObserveNodeDurationMs(nodeType, status string, ms float64) {
	if !m.isEnabled() {
		return
	}
	m.nodeDuration.WithLabelValues(nodeType, status).Observe(ms)
}

func (m *Metrics) IncCacheHit() {
	if !m.isEnabled() {
		return
	}
	m.cacheHits.WithLabelValues("hit").Inc()
}

func (m *Metrics) IncCacheMiss() {
	if !m.isEnabled() {
		return
	}
	m.cacheHits.WithLabelValues("miss").Inc()
}

func (m *Metrics) IncCircuitTrip(nodeID string) {
	if !m.isEnabled() {
		return
	}
	m.circuitTrips.WithLabelValues(nodeID).Inc()
}

func (m *Metrics) AddSpend(amount float64) {
	if !m.isEnabled() || amount <= 0 {
		return
	}
	m.spendTotal.Add(amount)
}

func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}
