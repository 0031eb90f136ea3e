package metrics

import "github.com/prometheus/client_golang/prometheus"

// PollerMetrics tracks live-notification polling runs.
type PollerMetrics struct {
	Runs          *prometheus.CounterVec
	Notifications prometheus.Counter
	RunDuration   prometheus.Histogram
}

// NewPollerMetrics creates and registers poller metrics on the given registry.
func NewPollerMetrics(reg prometheus.Registerer) *PollerMetrics {
	m := &PollerMetrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "runs_total",
			Help:      "Total number of poll runs, by result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "notifications_total",
			Help:      "Total number of favorite-live notifications emitted.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "run_duration_seconds",
			Help:      "Duration of a single poll run in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}

	reg.MustRegister(m.Runs, m.Notifications, m.RunDuration)
	return m
}
