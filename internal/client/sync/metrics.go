package sync

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the prometheus collectors of the coordinator
type Metrics struct {
	Passes       prometheus.Counter
	Strategies   *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	FullInFlight prometheus.Gauge
	PassDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them in reg when it is not nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gophsync",
			Subsystem: "sync",
			Name:      "passes_total",
			Help:      "Number of completed sync passes.",
		}),
		Strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophsync",
			Subsystem: "sync",
			Name:      "collections_total",
			Help:      "Collections processed per sync strategy.",
		}, []string{"strategy"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gophsync",
			Subsystem: "sync",
			Name:      "failures_total",
			Help:      "Failed sync applications per collection.",
		}, []string{"collection"}),
		FullInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gophsync",
			Subsystem: "sync",
			Name:      "full_in_flight",
			Help:      "Full resyncs currently running.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gophsync",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Passes, m.Strategies, m.Failures, m.FullInFlight, m.PassDuration)
	}
	return m
}
