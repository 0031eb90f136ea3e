package metrics

import "github.com/prometheus/client_golang/prometheus"

// CacheMetrics tracks the two-layer streamer stats cache.
type CacheMetrics struct {
	Hits          *prometheus.CounterVec
	Misses        prometheus.Counter
	Invalidations prometheus.Counter
	RedisErrors   *prometheus.CounterVec
}

// NewCacheMetrics creates and registers stats cache metrics on the given registry.
func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "hits_total",
			Help:      "Total number of stats cache hits, by layer.",
		}, []string{"layer"}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "misses_total",
			Help:      "Total number of stats cache misses that fell through to the database.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "invalidations_total",
			Help:      "Total number of stats cache invalidations.",
		}),
		RedisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats_cache",
			Name:      "redis_errors_total",
			Help:      "Total number of Redis failures seen by the stats cache, by operation.",
		}, []string{"operation"}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Invalidations, m.RedisErrors)
	return m
}
