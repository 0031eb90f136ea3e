package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebSocketMetrics covers the /ws clients that receive FavoriteLive pushes.
type WebSocketMetrics struct {
	Clients         prometheus.Gauge
	Connects        prometheus.Counter
	EventsPublished prometheus.Counter
	PublishFailures prometheus.Counter
}

func NewWebSocketMetrics(reg prometheus.Registerer) *WebSocketMetrics {
	const subsystem = "websocket"
	m := &WebSocketMetrics{
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "clients",
			Help: "Websocket clients currently connected.",
		}),
		Connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "connects_total",
			Help: "Websocket connections accepted since start.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "favorite_live_published_total",
			Help: "FavoriteLive events handed to the websocket node.",
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "publish_failures_total",
			Help: "FavoriteLive events the websocket node failed to publish.",
		}),
	}

	reg.MustRegister(m.Clients, m.Connects, m.EventsPublished, m.PublishFailures)
	return m
}
