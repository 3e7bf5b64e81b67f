// Package metrics provides Prometheus metrics for the prescription pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	IngestionsTotal     *prometheus.CounterVec
	RecordsPersisted    prometheus.Counter
	IngestDuration      prometheus.Histogram
	TagEvents           *prometheus.CounterVec
	CatalogLookups      *prometheus.CounterVec
	RankDuration        prometheus.Histogram
	PharmaciesSkipped   prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
	HTTPRequests        *prometheus.CounterVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IngestionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxtag_ingestions_total",
			Help: "Prescription ingestions by final outcome",
		}, []string{"outcome"}),
		RecordsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxtag_medication_records_persisted_total",
			Help: "Medication records written by committed ingestions",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxtag_ingest_duration_seconds",
			Help:    "Prescription ingestion duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		TagEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxtag_tag_events_total",
			Help: "Tag contacts by intent and result",
		}, []string{"intent", "result"}),
		CatalogLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxtag_catalog_lookups_total",
			Help: "Medication catalog lookups by result",
		}, []string{"result"}),
		RankDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rxtag_pharmacy_rank_duration_seconds",
			Help:    "Pharmacy ranking duration",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		PharmaciesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rxtag_pharmacies_skipped_total",
			Help: "Pharmacies excluded from ranking for invalid coordinates",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rxtag_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rxtag_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.IngestionsTotal,
		m.RecordsPersisted,
		m.IngestDuration,
		m.TagEvents,
		m.CatalogLookups,
		m.RankDuration,
		m.PharmaciesSkipped,
		m.CircuitBreakerState,
		m.HTTPRequests,
	)

	return m
}

// Handler returns the Prometheus HTTP handler for g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTagEvent counts one handled tag contact
func (m *Metrics) RecordTagEvent(intent, result string) {
	if m == nil {
		return
	}
	m.TagEvents.WithLabelValues(intent, result).Inc()
}

// RecordIngestion counts one finished ingestion
func (m *Metrics) RecordIngestion(outcome string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.IngestionsTotal.WithLabelValues(outcome).Inc()
	m.RecordsPersisted.Add(float64(records))
	m.IngestDuration.Observe(d.Seconds())
}

// RecordCatalogLookup counts one resolver lookup
func (m *Metrics) RecordCatalogLookup(result string) {
	if m == nil {
		return
	}
	m.CatalogLookups.WithLabelValues(result).Inc()
}

// RecordRank observes one ranking pass
func (m *Metrics) RecordRank(d time.Duration, skipped int) {
	if m == nil {
		return
	}
	m.RankDuration.Observe(d.Seconds())
	m.PharmaciesSkipped.Add(float64(skipped))
}

// SetBreakerState publishes a circuit breaker state
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// RecordHTTPRequest counts one served request
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
