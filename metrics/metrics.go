// Package metrics exposes Prometheus collectors for the emissions server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/emissions-engine/emissions"
)

// Metrics holds the collectors registered on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	recordsImported    *prometheus.CounterVec
	csvFailures        *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New registers the emissions collectors plus the Go and process collectors
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordsImported: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emissions",
			Name:      "records_imported_total",
			Help:      "Records written by bulk imports, by outcome (created, updated).",
		}, []string{"outcome"}),
		csvFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emissions",
			Name:      "csv_failures_total",
			Help:      "CSV imports refused, by error kind.",
		}, []string{"kind"}),
		validationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emissions",
			Name:      "validation_failures_total",
			Help:      "Field validation failures, by field and kind.",
		}, []string{"field", "kind"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "emissions",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveImport counts the records an import created and replaced.
func (m *Metrics) ObserveImport(report emissions.ImportReport) {
	m.recordsImported.WithLabelValues("created").Add(float64(len(report.CreatedYears)))
	m.recordsImported.WithLabelValues("updated").Add(float64(len(report.UpdatedYears)))
}

// ObserveError counts CSV and validation failures. Other errors are ignored.
func (m *Metrics) ObserveError(err error) {
	var csvErr *emissions.CSVError
	if errors.As(err, &csvErr) {
		m.csvFailures.WithLabelValues(string(csvErr.Kind)).Inc()
		return
	}
	var verr *emissions.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields.Fields() {
			m.validationFailures.WithLabelValues(string(f), string(verr.Fields[f])).Inc()
		}
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
