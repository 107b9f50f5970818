package cascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardiosim",
			Subsystem: "cascade",
			Name:      "attempts_total",
			Help:      "Provider attempts by outcome",
		},
		[]string{"provider", "capability", "outcome"},
	)

	pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardiosim",
			Subsystem: "cascade",
			Name:      "polls_total",
			Help:      "Status queries issued for pending provider jobs",
		},
		[]string{"provider"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cardiosim",
			Subsystem: "cascade",
			Name:      "resolutions_total",
			Help:      "Completed resolutions by provenance",
		},
		[]string{"capability", "domain", "provenance", "cached"},
	)

	resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cardiosim",
			Subsystem: "cascade",
			Name:      "resolve_duration_seconds",
			Help:      "Wall time of a full resolution",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"capability"},
	)
)
