// Package metrics bundles the prometheus collectors shared by the
// provenance services around a single registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the registry and every collector the services report into.
// One instance per process, created in bootstrap.
type Metrics struct {
	registry *prometheus.Registry

	eventsProcessed   *prometheus.CounterVec
	eventsDiscarded   *prometheus.CounterVec
	observerFailures  *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	identifiersMinted *prometheus.CounterVec
	submitDuration    *prometheus.HistogramVec
	httpDuration      *prometheus.HistogramVec
	feedClients       prometheus.Gauge
}

// New creates the collector set labeled with the owning service.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": service}

	return &Metrics{
		registry: registry,
		eventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "provenance",
			Name:        "events_processed_total",
			Help:        "Normalized ledger events recorded into history.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		eventsDiscarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "provenance",
			Name:        "events_discarded_total",
			Help:        "Redelivered ledger events dropped by sequence-key dedup.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		observerFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "provenance",
			Name:        "observer_failures_total",
			Help:        "Observer invocations that returned an error or panicked.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "provenance",
			Name:        "verifications_total",
			Help:        "Verification requests by source of truth and outcome.",
			ConstLabels: constLabels,
		}, []string{"source", "outcome"}),
		identifiersMinted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "provenance",
			Name:        "identifiers_minted_total",
			Help:        "Identifiers minted by kind and nonce assurance.",
			ConstLabels: constLabels,
		}, []string{"kind", "assurance"}),
		submitDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "provenance",
			Name:        "ledger_submit_duration_seconds",
			Help:        "Wall time from broadcast to inclusion per submit operation.",
			ConstLabels: constLabels,
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 90},
		}, []string{"operation"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "provenance",
			Name:        "http_request_duration_seconds",
			Help:        "HTTP handler latency.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		feedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "provenance",
			Name:        "feed_clients",
			Help:        "Currently connected websocket feed clients.",
			ConstLabels: constLabels,
		}),
	}
}

// EventRecorded satisfies the synchronizer's metrics hook.
func (m *Metrics) EventRecorded(kind string) {
	m.eventsProcessed.WithLabelValues(kind).Inc()
}

// DuplicateDiscarded satisfies the synchronizer's metrics hook.
func (m *Metrics) DuplicateDiscarded(kind string) {
	m.eventsDiscarded.WithLabelValues(kind).Inc()
}

// ObserverFailure satisfies the synchronizer's metrics hook.
func (m *Metrics) ObserverFailure(kind string) {
	m.observerFailures.WithLabelValues(kind).Inc()
}

// VerificationCompleted counts one resolved verification.
func (m *Metrics) VerificationCompleted(source string, valid bool) {
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	m.verifications.WithLabelValues(source, outcome).Inc()
}

// IdentifierMinted counts one minted identifier.
func (m *Metrics) IdentifierMinted(kind, assurance string) {
	m.identifiersMinted.WithLabelValues(kind, assurance).Inc()
}

// ObserveSubmit records the duration of one ledger submission.
func (m *Metrics) ObserveSubmit(operation string, start time.Time) {
	m.submitDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, start time.Time) {
	m.httpDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// FeedClientConnected adjusts the websocket client gauge.
func (m *Metrics) FeedClientConnected() {
	m.feedClients.Inc()
}

// FeedClientDisconnected adjusts the websocket client gauge.
func (m *Metrics) FeedClientDisconnected() {
	m.feedClients.Dec()
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
