package report

import "github.com/prometheus/client_golang/prometheus"

var (
	cardsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rapor",
			Name:      "cards_generated_total",
			Help:      "Report cards processed by generation, by outcome (generated, skipped, failed).",
		},
		[]string{"outcome"},
	)
	cardsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rapor",
			Name:      "cards_published_total",
			Help:      "Report cards processed by publication, by outcome (published, skipped, failed).",
		},
		[]string{"outcome"},
	)
	gradesOverridden = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rapor",
			Name:      "grades_overridden_total",
			Help:      "Subject grades set by hand.",
		},
	)
	gradesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rapor",
			Name:      "grades_computed_total",
			Help:      "Subject grades computed, by aggregation method.",
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(cardsGenerated, cardsPublished, gradesOverridden, gradesComputed)
}
