package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeCompleted  = "completed"
	OutcomeOverloaded = "overloaded"
	OutcomeError      = "error"
)

var (
	generationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_generation_outcomes_total",
		Help: "Generation requests by processing outcome.",
	}, []string{"outcome"})

	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "studio_generation_processing_seconds",
		Help:    "Time spent in the generation processor.",
		Buckets: []float64{0.5, 1, 1.5, 2, 3, 5, 10, 30, 60},
	}, []string{"processor"})

	authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "studio_auth_events_total",
		Help: "Signups and logins by result.",
	}, []string{"event", "result"})
)

func RecordAuthEvent(event string, result string) {
	authEvents.WithLabelValues(event, result).Inc()
}
