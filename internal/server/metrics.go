package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus collectors for one server.
type metrics struct {
	statusEvents   *prometheus.CounterVec
	activations    *prometheus.CounterVec
	sessionsActive prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		statusEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thebekit",
			Name:      "status_events_total",
			Help:      "Widget status events relayed to launch buttons",
		}, []string{"status"}),

		activations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thebekit",
			Name:      "activations_total",
			Help:      "Page activations by outcome",
		}, []string{"outcome"}),

		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "thebekit",
			Name:      "sessions_active",
			Help:      "Connected page sessions",
		}),
	}
}
