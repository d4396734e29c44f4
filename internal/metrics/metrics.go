// Package metrics exposes ingest counters and the latest reading to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streetlight-server/internal/modules/airquality/types"
)

type Metrics struct {
	registry *prometheus.Registry

	accepted        prometheus.Counter
	rejected        *prometheus.CounterVec
	transportErrors prometheus.Counter
	reconnects      prometheus.Counter
	latestRaw       prometheus.Gauge
	aqiIndex        prometheus.Gauge
	category        *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
}

// New registers all collectors on a private registry, plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streetlight_readings_accepted_total",
			Help: "Readings that passed validation and were published.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streetlight_readings_rejected_total",
			Help: "Readings rejected by reason (parse, range).",
		}, []string{"reason"}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streetlight_transport_errors_total",
			Help: "Failed reads or opens on the hardware link.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streetlight_reconnects_total",
			Help: "Reconnect attempts after the failure threshold was reached.",
		}),
		latestRaw: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetlight_latest_raw",
			Help: "Most recent accepted raw sensor code.",
		}),
		aqiIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streetlight_aqi_index",
			Help: "AQI index of the most recent reading.",
		}),
		category: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "streetlight_aqi_category",
			Help: "1 for the current AQI category, 0 otherwise.",
		}, []string{"category"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streetlight_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.accepted,
		m.rejected,
		m.transportErrors,
		m.reconnects,
		m.latestRaw,
		m.aqiIndex,
		m.category,
		m.httpRequests,
	)

	for _, reason := range []string{types.EventParse, types.EventRange} {
		m.rejected.WithLabelValues(reason)
	}
	for _, c := range []types.Category{types.Good, types.Moderate, types.Unhealthy, types.VeryUnhealthy} {
		m.category.WithLabelValues(c.String()).Set(0)
	}
	return m
}

func (m *Metrics) ObserveAccepted(snap types.Snapshot) {
	m.accepted.Inc()
	m.latestRaw.Set(float64(snap.Latest))
	m.aqiIndex.Set(float64(snap.Classification.Index))
	for _, c := range []types.Category{types.Good, types.Moderate, types.Unhealthy, types.VeryUnhealthy} {
		v := 0.0
		if c == snap.Classification.Category {
			v = 1
		}
		m.category.WithLabelValues(c.String()).Set(v)
	}
}

func (m *Metrics) ObserveRejected(reason string) { m.rejected.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveTransportError() { m.transportErrors.Inc() }

func (m *Metrics) ObserveReconnect() { m.reconnects.Inc() }

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and additional collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
