// Package observability exposes the prometheus instrumentation for the
// money-market service.
package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records lending operation activity and per-market gauges.
type EngineMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	utilization *prometheus.GaugeVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Metrics returns the lazily-initialised engine metrics registry.
func Metrics() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendnet",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendnet",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for lending operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "lendnet",
				Subsystem: "market",
				Name:      "utilization_ratio",
				Help:      "Current borrow utilization per market, 1e18-scaled ratio normalised to [0,1].",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.utilization,
		)
	})
	return engineRegistry
}

// ObserveOperation records one completed operation with its outcome.
func (m *EngineMetrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// SetUtilization publishes a market's current utilization ratio.
func (m *EngineMetrics) SetUtilization(asset string, ratio float64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(asset).Set(ratio)
}
