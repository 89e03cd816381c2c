package session

import "github.com/prometheus/client_golang/prometheus"

var (
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tally_sessions_active",
			Help: "Number of open ledger sessions.",
		},
	)

	sessionLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_session_loads_total",
			Help: "Total number of journal loads by result.",
		},
		[]string{"result"},
	)

	sessionLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tally_session_load_duration_seconds",
			Help:    "Time spent parsing journal data into a session.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(sessionsActive)
	prometheus.MustRegister(sessionLoadsTotal)
	prometheus.MustRegister(sessionLoadDuration)
}
