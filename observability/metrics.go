package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics records sweep activity for the forwarder.
type SweepMetrics struct {
	sweeps    *prometheus.CounterVec
	forwarded prometheus.Counter
	duration  prometheus.Histogram
}

var (
	sweepMetricsOnce sync.Once
	sweepRegistry    *SweepMetrics
)

// Sweep returns the lazily-initialised sweep metrics registry.
func Sweep() *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepRegistry = &SweepMetrics{
			sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xdonate",
				Subsystem: "sweep",
				Name:      "sweeps_total",
				Help:      "Total sweep attempts segmented by asset and outcome.",
			}, []string{"asset", "outcome"}),
			forwarded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "xdonate",
				Subsystem: "sweep",
				Name:      "forwarded_base_units_total",
				Help:      "Cumulative donation-asset base units forwarded across the bridge.",
			}),
			duration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "xdonate",
				Subsystem: "sweep",
				Name:      "duration_seconds",
				Help:      "Latency distribution for sweep calls, adapters included.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			sweepRegistry.sweeps,
			sweepRegistry.forwarded,
			sweepRegistry.duration,
		)
	})
	return sweepRegistry
}

// ObserveSweep records a completed or failed sweep attempt.
func (m *SweepMetrics) ObserveSweep(asset, outcome string, elapsed time.Duration, forwardedUnits float64) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(asset, outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
	if forwardedUnits > 0 {
		m.forwarded.Add(forwardedUnits)
	}
}
