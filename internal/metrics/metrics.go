// Package metrics exposes Prometheus metrics for the HTTP server and the
// prediction pipeline on a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "textcat"

type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	predictionsTotal     *prometheus.CounterVec
	predictionConfidence prometheus.Histogram
	predictionErrors     *prometheus.CounterVec
	batchSize            prometheus.Histogram
	rateLimited          prometheus.Counter
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry. modelVersion is attached to the
// prediction counters.
func New(modelVersion string) *Metrics {
	registry := prometheus.NewRegistry()
	version := prometheus.Labels{"model_version": modelVersion}

	m := &Metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		requestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "in_flight_requests",
				Help:      "Number of in-flight HTTP requests.",
			},
		),
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "predictions_total",
				Help:        "Total successful predictions by category.",
				ConstLabels: version,
			},
			[]string{"category"},
		),
		predictionConfidence: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "prediction_confidence",
				Help:        "Distribution of winning-category probabilities.",
				Buckets:     []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
				ConstLabels: version,
			},
		),
		predictionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "pipeline",
				Name:        "errors_total",
				Help:        "Total failed predictions by pipeline stage.",
				ConstLabels: version,
			},
			[]string{"stage"},
		),
		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "batch_size",
				Help:      "Number of texts per batch request.",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
		),
		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Total requests rejected by the rate limiter.",
			},
		),
	}

	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.requestInFlight,
		m.predictionsTotal,
		m.predictionConfidence,
		m.predictionErrors,
		m.batchSize,
		m.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts requests and observes their duration.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		rec := NewStatusRecorder(w)

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(rec, r)

		m.requestTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.Status())).Inc()
		m.requestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath keeps the label set bounded.
func normalizePath(path string) string {
	switch path {
	case "/health", "/metrics",
		"/api/v1/predict", "/api/v1/batch-predict",
		"/api/v1/categories", "/api/v1/feedback":
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/other"
	}
	return "other"
}

func (m *Metrics) RecordPrediction(category string, confidence float64) {
	m.predictionsTotal.WithLabelValues(category).Inc()
	m.predictionConfidence.Observe(confidence)
}

func (m *Metrics) RecordError(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	m.predictionErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordBatch(size int) {
	m.batchSize.Observe(float64(size))
}

func (m *Metrics) RecordRateLimited() {
	m.rateLimited.Inc()
}
