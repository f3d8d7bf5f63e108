// Package metrics provides Prometheus metrics for the catalog service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Oracle metrics
	OracleLookups *prometheus.CounterVec
	UnitPrice     prometheus.Gauge

	// Upstream metrics
	UpstreamFetches       *prometheus.CounterVec
	UpstreamFetchDuration prometheus.Histogram

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance and registers it with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OracleLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_lookups_total",
			Help:      "Unit price lookups by the path that answered them.",
		}, []string{"source"}),
		UnitPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_price",
			Help:      "Last live gold price per gram.",
		}),
		UpstreamFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_total",
			Help:      "Upstream spot price fetches by result.",
		}, []string{"result"}),
		UpstreamFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_fetch_duration_seconds",
			Help:      "Upstream spot price fetch duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.OracleLookups,
		m.UnitPrice,
		m.UpstreamFetches,
		m.UpstreamFetchDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordLookup counts a unit price lookup answered by source.
func (m *Metrics) RecordLookup(source string) {
	if m == nil {
		return
	}
	m.OracleLookups.WithLabelValues(source).Inc()
}

// RecordFetch records one upstream fetch.
func (m *Metrics) RecordFetch(ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.UpstreamFetches.WithLabelValues(result).Inc()
	m.UpstreamFetchDuration.Observe(seconds)
}

// SetUnitPrice sets the last live unit price.
func (m *Metrics) SetUnitPrice(amount float64) {
	if m == nil {
		return
	}
	m.UnitPrice.Set(amount)
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
