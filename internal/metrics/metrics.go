package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpcache_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gpcache_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	sessionRenewalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpcache_session_renewals_total",
			Help: "Number of upstream session renewals triggered by a 401.",
		},
	)

	gpCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpcache_gp_cache_hits_total",
			Help: "GP requests answered from the in-memory cache.",
		},
	)

	gpCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpcache_gp_cache_misses_total",
			Help: "GP requests that required an upstream fetch.",
		},
	)

	catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpcache_catalog_size",
			Help: "Number of objects in the current catalog snapshot.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gpcache_catalog_age_seconds",
			Help: "Age of the current catalog snapshot in seconds.",
		},
	)

	catalogRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gpcache_catalog_refresh_duration_seconds",
			Help:    "Time spent fetching and ingesting the full catalog.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	catalogRefreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gpcache_catalog_refresh_errors_total",
			Help: "Catalog refresh attempts that failed.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(sessionRenewalsTotal)
	prometheus.MustRegister(gpCacheHitsTotal)
	prometheus.MustRegister(gpCacheMissesTotal)
	prometheus.MustRegister(catalogSize)
	prometheus.MustRegister(catalogAgeSeconds)
	prometheus.MustRegister(catalogRefreshDuration)
	prometheus.MustRegister(catalogRefreshErrors)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncSessionRenewals increments the session renewal counter.
func IncSessionRenewals() { sessionRenewalsTotal.Inc() }

// IncGPCacheHits increments the GP cache hit counter.
func IncGPCacheHits() { gpCacheHitsTotal.Inc() }

// IncGPCacheMisses increments the GP cache miss counter.
func IncGPCacheMisses() { gpCacheMissesTotal.Inc() }

// SetCatalogSize publishes the current catalog snapshot size.
func SetCatalogSize(n int) { catalogSize.Set(float64(n)) }

// SetCatalogAge publishes the current catalog snapshot age in seconds.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// ObserveCatalogRefreshDuration records the duration of a catalog refresh.
func ObserveCatalogRefreshDuration(d time.Duration) {
	catalogRefreshDuration.Observe(d.Seconds())
}

// IncCatalogRefreshErrors increments the failed-refresh counter.
func IncCatalogRefreshErrors() { catalogRefreshErrors.Inc() }

// normalizeRoute collapses request paths into a bounded label set so that
// scanners and per-object URLs cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/v1/search":
		return path
	}
	if strings.HasPrefix(path, "/api/v1/current/") {
		return "/api/v1/current/{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
