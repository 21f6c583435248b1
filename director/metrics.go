package director

import "github.com/prometheus/client_golang/prometheus"

// runMetrics are per-run counters registered on the director's private
// registry, exposed through Gatherer.
type runMetrics struct {
	cases    prometheus.Counter
	failures prometheus.Counter
	duration prometheus.Histogram
}

func newRunMetrics(reg *prometheus.Registry) *runMetrics {
	m := &runMetrics{
		cases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_cases_total",
			Help: "Cases processed by the director.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verdict_case_failures_total",
			Help: "Cases that ended with a recorded exception.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verdict_case_duration_seconds",
			Help:    "Wall-clock duration of individual cases.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	reg.MustRegister(m.cases, m.failures, m.duration)
	return m
}
