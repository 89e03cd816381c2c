package bridge

import "github.com/prometheus/client_golang/prometheus"

var (
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tally_bridge_connections_active",
			Help: "Number of open bridge connections.",
		},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_bridge_requests_total",
			Help: "Total number of bridge requests by op and outcome.",
		},
		[]string{"op", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(connectionsActive)
	prometheus.MustRegister(requestsTotal)
}
