package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks session ledger reconciliation.
type LedgerMetrics struct {
	SessionsOpened prometheus.Counter
	SessionsClosed prometheus.Counter
	WriteFailures  prometheus.Counter
	QueueDropped   prometheus.Counter
}

// NewLedgerMetrics creates and registers ledger metrics on the given registry.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sessions_opened_total",
			Help:      "Total number of stream sessions opened.",
		}),
		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sessions_closed_total",
			Help:      "Total number of stream sessions closed.",
		}),
		WriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_failures_total",
			Help:      "Total number of reconciliation passes that failed.",
		}),
		QueueDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "queue_dropped_total",
			Help:      "Total number of live snapshots dropped because the ledger queue was full.",
		}),
	}

	reg.MustRegister(m.SessionsOpened, m.SessionsClosed, m.WriteFailures, m.QueueDropped)
	return m
}
