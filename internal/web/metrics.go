package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asheshgoplani/shelldeck/internal/workspace"
)

// Metrics are kept on a private registry so several servers can coexist in
// one process.
type Metrics struct {
	registry *prometheus.Registry

	SessionsLive  prometheus.GaugeFunc
	Notifications *prometheus.CounterVec
	SpawnFailures prometheus.Counter
	SessionExits  prometheus.Counter
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
}

// NewMetrics registers the collectors. liveSessions is sampled at scrape
// time.
func NewMetrics(liveSessions func() int) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SessionsLive: factory.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "shelldeck_sessions_live",
				Help: "Number of live shell sessions",
			},
			func() float64 { return float64(liveSessions()) },
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelldeck_notifications_total",
				Help: "Background tabs flagged, by kind",
			},
			[]string{"kind"},
		),
		SpawnFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shelldeck_spawn_failures_total",
				Help: "Shells that failed to start",
			},
		),
		SessionExits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "shelldeck_session_exits_total",
				Help: "Shells that exited on their own",
			},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shelldeck_ws_connections",
				Help: "Open websocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelldeck_ws_messages_total",
				Help: "Websocket messages received, by type",
			},
			[]string{"type"},
		),
	}
}

// Observe updates counters from a workspace event.
func (m *Metrics) Observe(ev workspace.Event) {
	switch ev.Type {
	case workspace.EventNotification:
		m.Notifications.WithLabelValues(ev.Kind.String()).Inc()
	case workspace.EventError:
		m.SpawnFailures.Inc()
	case workspace.EventExit:
		m.SessionExits.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
