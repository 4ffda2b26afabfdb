package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics instruments polling, command dispatch and session lifecycle. Each
// instance carries its own registry so tests never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	pollTotal      *prometheus.CounterVec
	pollDuration   *prometheus.HistogramVec
	commandTotal   *prometheus.CounterVec
	refreshTotal   *prometheus.CounterVec
	vehiclesGauge  prometheus.Gauge
	reauthRequired prometheus.Gauge
}

// New creates a metrics set registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "uconnect",
				Subsystem: "poll",
				Name:      "total",
				Help:      "Total vehicle state fetches by result",
			},
			[]string{"vin", "depth", "status"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "uconnect",
				Subsystem: "poll",
				Name:      "duration_seconds",
				Help:      "Duration of vehicle state fetches",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"vin", "depth"},
		),
		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "uconnect",
				Subsystem: "command",
				Name:      "total",
				Help:      "Total remote command dispatches by result",
			},
			[]string{"command", "status"},
		),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "uconnect",
				Subsystem: "session",
				Name:      "refresh_total",
				Help:      "Total session refresh attempts by result",
			},
			[]string{"status"},
		),
		vehiclesGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "uconnect",
				Name:      "vehicles",
				Help:      "Number of vehicles tracked on the account",
			},
		),
		reauthRequired: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "uconnect",
				Subsystem: "session",
				Name:      "reauth_required",
				Help:      "1 when the session needs external reauthentication",
			},
		),
	}

	m.registry.MustRegister(
		m.pollTotal,
		m.pollDuration,
		m.commandTotal,
		m.refreshTotal,
		m.vehiclesGauge,
		m.reauthRequired,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePoll(vin, depth string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.pollTotal.WithLabelValues(vin, depth, status).Inc()
	m.pollDuration.WithLabelValues(vin, depth).Observe(d.Seconds())
}

func (m *Metrics) ObserveCommand(command string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.commandTotal.WithLabelValues(command, status).Inc()
}

func (m *Metrics) ObserveRefresh(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.refreshTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetVehicles(n int) {
	m.vehiclesGauge.Set(float64(n))
}

func (m *Metrics) SetReauthRequired(required bool) {
	if required {
		m.reauthRequired.Set(1)
		return
	}
	m.reauthRequired.Set(0)
}
