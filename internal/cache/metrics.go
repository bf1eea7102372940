package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests      *prometheus.CounterVec
	invalidations prometheus.Counter
	resyncSeconds prometheus.Histogram
}

// newMetrics builds unregistered collectors when reg is nil.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casebook_cache_requests_total",
			Help: "Case study listing reads by result (hit or miss).",
		}, []string{"result"}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "casebook_cache_invalidations_total",
			Help: "Explicit invalidations of the case study listing.",
		}),
		resyncSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "casebook_cache_resync_seconds",
			Help:    "Time spent listing the backing store.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
