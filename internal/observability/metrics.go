package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
)

// Metrics holds the Prometheus instruments for the console.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge

	SessionsOpenedTotal prometheus.Counter
	SessionsClosedTotal *prometheus.CounterVec
	SessionsActive      prometheus.Gauge

	AnalysisUploadsTotal   *prometheus.CounterVec
	AnalysisExportsTotal   prometheus.Counter
	AnalysisExportRows     prometheus.Histogram
	AnalysisWorkspaces     prometheus.Gauge
	AnalysisStaleResponses prometheus.Counter

	LookupCacheHitsTotal   *prometheus.CounterVec
	LookupCacheMissesTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all instruments with reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_http_requests_total",
			Help: "Total number of HTTP requests served by the console.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wyclient_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_backend_requests_total",
			Help: "Total number of backend requests by endpoint and outcome code.",
		}, []string{"endpoint", "outcome"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wyclient_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"endpoint"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wyclient_backend_circuit_breaker_state",
			Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),

		SessionsOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wyclient_sessions_opened_total",
			Help: "Total number of console sessions opened by login.",
		}),
		SessionsClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_sessions_closed_total",
			Help: "Total number of console sessions torn down, by reason.",
		}, []string{"reason"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wyclient_sessions_active",
			Help: "Sessions opened and not yet torn down by this instance.",
		}),

		AnalysisUploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_analysis_uploads_total",
			Help: "Total number of match uploads and dimension queries, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		AnalysisExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wyclient_analysis_exports_total",
			Help: "Total number of spreadsheet exports.",
		}),
		AnalysisExportRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wyclient_analysis_export_rows",
			Help:    "Rows written per spreadsheet export.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
		AnalysisWorkspaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wyclient_analysis_workspaces",
			Help: "Analysis workspaces currently held in memory.",
		}),
		AnalysisStaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wyclient_analysis_stale_responses_total",
			Help: "Match responses applied after a newer request had already been sent.",
		}),

		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_lookup_cache_hits_total",
			Help: "Total name lookup cache hits.",
		}, []string{"lookup"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wyclient_lookup_cache_misses_total",
			Help: "Total name lookup cache misses.",
		}, []string{"lookup"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.SessionsOpenedTotal,
		m.SessionsClosedTotal,
		m.SessionsActive,
		m.AnalysisUploadsTotal,
		m.AnalysisExportsTotal,
		m.AnalysisExportRows,
		m.AnalysisWorkspaces,
		m.AnalysisStaleResponses,
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
	)
	return m
}

// All recording helpers accept a nil receiver so components can run without
// metrics in tests and in the CLI.

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// RecordBackendRequest records one backend call. outcome is "ok" or an
// error code.
func (m *Metrics) RecordBackendRequest(endpoint, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.BackendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the breaker gauge (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.BackendCircuitBreakerState.Set(state)
}

// RecordSessionOpened records a login.
func (m *Metrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.SessionsOpenedTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionClosed records a logout or expiry.
func (m *Metrics) RecordSessionClosed(reason string) {
	if m == nil {
		return
	}
	m.SessionsClosedTotal.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

// RecordUpload records a match upload or dimension query.
func (m *Metrics) RecordUpload(kind, outcome string) {
	if m == nil {
		return
	}
	m.AnalysisUploadsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordStaleResponse records a response that resolved out of order.
func (m *Metrics) RecordStaleResponse() {
	if m == nil {
		return
	}
	m.AnalysisStaleResponses.Inc()
}

// RecordExport records an export and its row count.
func (m *Metrics) RecordExport(rows int) {
	if m == nil {
		return
	}
	m.AnalysisExportsTotal.Inc()
	m.AnalysisExportRows.Observe(float64(rows))
}

// SetWorkspaces sets the number of live analysis workspaces.
func (m *Metrics) SetWorkspaces(n int) {
	if m == nil {
		return
	}
	m.AnalysisWorkspaces.Set(float64(n))
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(lookup string) {
	if m == nil {
		return
	}
	m.LookupCacheHitsTotal.WithLabelValues(lookup).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(lookup string) {
	if m == nil {
		return
	}
	m.LookupCacheMissesTotal.WithLabelValues(lookup).Inc()
}

// MetricsMiddleware records request metrics using chi's route pattern (not
// the raw URL path) to keep label cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	pattern := strings.TrimSuffix(strings.Join(rctx.RoutePatterns, ""), "/*")
	if pattern == "" {
		return "unmatched"
	}
	return pattern
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}
