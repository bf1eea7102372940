package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transitions        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casebook_lifecycle_transitions_total",
			Help: "Completed lifecycle transitions by target status.",
		}, []string{"status"}),
		sideEffectFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casebook_lifecycle_side_effect_failures_total",
			Help: "Best-effort steps that failed after a case study was committed.",
		}, []string{"step"}),
	}
}
