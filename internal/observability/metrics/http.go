package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal         *prometheus.CounterVec
	searchModeTotal     *prometheus.CounterVec
	searchCandidates    *prometheus.HistogramVec
	searchGateTotal     *prometheus.CounterVec
	searchComposite     *prometheus.HistogramVec
	searchDuration      *prometheus.HistogramVec
	caseMemoryRecorded  *prometheus.CounterVec
	caseMemoryLookupHit *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retrieval",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total completed search requests.",
		},
		[]string{"service"},
	)
	searchModeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "mode_total",
			Help:      "Completed search requests by retrieval mode.",
		},
		[]string{"service", "mode"},
	)
	searchCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "candidates",
			Help:      "Broad-stage candidate count per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 200},
		},
		[]string{"service"},
	)
	searchGateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "gate_total",
			Help:      "Scored candidates by gate outcome.",
		},
		[]string{"service", "outcome"},
	)
	searchComposite := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "composite_confidence",
			Help:      "Distribution of composite confidence across scored candidates.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1},
		},
		[]string{"service"},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Broad-then-deep search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	caseMemoryRecorded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "case_memory",
			Name:      "recorded_total",
			Help:      "Total case memory entries recorded.",
		},
		[]string{"service"},
	)
	caseMemoryLookupHit := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Subsystem: "case_memory",
			Name:      "lookup_total",
			Help:      "Case memory lookups by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchModeTotal,
		searchCandidates,
		searchGateTotal,
		searchComposite,
		searchDuration,
		caseMemoryRecorded,
		caseMemoryLookupHit,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		searchTotal:         searchTotal,
		searchModeTotal:     searchModeTotal,
		searchCandidates:    searchCandidates,
		searchGateTotal:     searchGateTotal,
		searchComposite:     searchComposite,
		searchDuration:      searchDuration,
		caseMemoryRecorded:  caseMemoryRecorded,
		caseMemoryLookupHit: caseMemoryLookupHit,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		switch {
		case strings.HasSuffix(path, "/nodes"):
			return "/v1/documents/{document_id}/nodes"
		case strings.HasSuffix(path, "/reprocess"):
			return "/v1/documents/{document_id}/reprocess"
		default:
			return "/v1/documents/{document_id}"
		}
	case strings.HasPrefix(path, "/v1/case-memory/"):
		return "/v1/case-memory/{signature}"
	case strings.HasPrefix(path, "/v1/chunks/"):
		return "/v1/chunks/{chunk_id}/reembed"
	default:
		return path
	}
}

// RecordSearch captures one completed broad-then-deep search.
func (m *HTTPServerMetrics) RecordSearch(service, mode string, candidates, passed int, composites []float64, duration time.Duration) {
	m.searchTotal.WithLabelValues(service).Inc()
	m.searchModeTotal.WithLabelValues(service, mode).Inc()
	m.searchCandidates.WithLabelValues(service).Observe(float64(candidates))
	m.searchDuration.WithLabelValues(service).Observe(duration.Seconds())

	if passed > 0 {
		m.searchGateTotal.WithLabelValues(service, "passed").Add(float64(passed))
	}
	if failed := candidates - passed; failed > 0 {
		m.searchGateTotal.WithLabelValues(service, "failed").Add(float64(failed))
	}
	for _, c := range composites {
		m.searchComposite.WithLabelValues(service).Observe(c)
	}
}

func (m *HTTPServerMetrics) RecordCaseMemoryWrite(service string) {
	m.caseMemoryRecorded.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordCaseMemoryLookup(service string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.caseMemoryLookupHit.WithLabelValues(service, outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
