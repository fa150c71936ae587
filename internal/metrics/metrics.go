package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"inkpost/internal/util"
)

const Namespace = "blog"

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: Namespace, Name: "http_requests_total", Help: "HTTP requests by route, method and status."},
		[]string{"path", "method", "status"},
	)
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: Namespace, Name: "http_request_duration_seconds", Help: "HTTP request latency in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"path", "method"},
	)
	// Mutations counts successful writes by entity and action, e.g. post/create.
	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: Namespace, Name: "mutations_total", Help: "Successful writes by entity and action."},
		[]string{"entity", "action"},
	)
	AuthorizationDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: Namespace, Name: "authorization_denied_total", Help: "Requests refused by ownership or session checks."},
		[]string{"reason"},
	)
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: Namespace, Name: "rate_limited_total", Help: "Write requests rejected by the rate limiter."},
	)
)

// Instrument records request count and latency. It must wrap the ServeMux
// directly so the matched route pattern is visible after dispatch.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := util.NewStatusRecorder(w)
		next.ServeHTTP(rec, r)
		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		HTTPLatency.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
		HTTPRequests.WithLabelValues(path, r.Method, strconv.Itoa(rec.Status())).Inc()
	})
}

// Exposer returns the Prometheus scrape handler.
func Exposer() http.Handler { return promhttp.Handler() }
