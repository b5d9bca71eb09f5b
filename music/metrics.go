package music

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "jukebox_sessions_active", Help: "Rooms with a live session"},
	)
	tracksStarted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "jukebox_tracks_started_total", Help: "Tracks handed to the sink"},
	)
	resolveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "jukebox_resolve_failures_total", Help: "Requests skipped because they could not be played"},
	)
	resolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "jukebox_resolve_duration_seconds",
			Help:    "Time spent resolving a request",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)
	autoplayOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jukebox_autoplay_total", Help: "Autoplay proposals by outcome"},
		[]string{"outcome"},
	)
	teardowns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "jukebox_teardowns_total", Help: "Session teardowns by reason"},
		[]string{"reason"},
	)
)

// RegisterMetrics registers the engine collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(sessionsActive, tracksStarted, resolveFailures, resolveDuration, autoplayOutcomes, teardowns)
}
