// Package metrics holds the Prometheus collectors of the observations service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors touched by the pipeline and the HTTP layer.
type Metrics struct {
	ObservationsCreated prometheus.Counter
	ValidationFailures  *prometheus.CounterVec // labels: field
	ObservationsServed  *prometheus.CounterVec // labels: mode={json,geojson,minimal,xlsx}
	Reprojections       *prometheus.CounterVec // labels: crs
	RoiLookups          *prometheus.CounterVec // labels: result={hit,miss,error}
	StoreErrors         *prometheus.CounterVec // labels: op

	HTTPRequestDuration *prometheus.HistogramVec // labels: route, method, status
}

func newMetrics() *Metrics {
	return &Metrics{
		ObservationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "observations_created_total",
			Help:      "Observations persisted.",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "validation_failures_total",
			Help:      "Rejected submission fields by dotted path.",
		}, []string{"field"}),
		ObservationsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "observations_served_total",
			Help:      "Observations returned by output mode.",
		}, []string{"mode"}),
		Reprojections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "reprojections_total",
			Help:      "Coordinates converted, by reference system code.",
		}, []string{"crs"}),
		RoiLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "roi_lookups_total",
			Help:      "Region containment lookups by result.",
		}, []string{"result"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lakewatch",
			Name:      "store_errors_total",
			Help:      "Persistence failures by operation.",
		}, []string{"op"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lakewatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route, method and status.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method", "status"}),
	}
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.ObservationsCreated,
		m.ValidationFailures,
		m.ObservationsServed,
		m.Reprojections,
		m.RoiLookups,
		m.StoreErrors,
		m.HTTPRequestDuration,
	)
	return m
}

// NewMetricsForTesting returns unregistered collectors so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
