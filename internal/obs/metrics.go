package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	documentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_created_total",
			Help: "Documents created, labelled by scope kind.",
		},
		[]string{"scope"},
	)

	tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "access_tokens_issued_total",
		Help: "Access tokens issued or provisioned.",
	})
)

// Init registers metrics in the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		documentsCreated, tokensIssued)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DocumentCreated records a document creation under the given scope kind.
func DocumentCreated(scope string) {
	documentsCreated.WithLabelValues(scope).Inc()
}

// TokenIssued records an access token issuance or first-use provisioning.
func TokenIssued() {
	tokensIssued.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := pathFamily(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// pathFamily collapses client-chosen path segments so metric label
// cardinality stays bounded.
func pathFamily(path string) string {
	switch path {
	case "/", "/login", "/register", "/change-password", "/me",
		"/healthz", "/readyz", "/metrics", "/v1/info", "/api/token":
		return path
	}
	if strings.HasPrefix(path, "/api/") {
		return "/api/{token}/{route}"
	}
	return "/{route}"
}

// statusWriter records the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
