package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: analyses served from the result cache.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_cache_hits_total",
			Help: "Total number of analyses served from the result cache.",
		},
	)

	// Counter: analysis requests by model and outcome (ok | error).
	AnalysisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_requests_total",
			Help: "Total analysis requests by model and outcome.",
		},
		[]string{"model", "outcome"},
	)

	// Histogram: upstream inference latency in seconds.
	AnalysisLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analysis_latency_seconds",
			Help:    "Upstream inference latency in seconds.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// Histogram: HTTP latency in seconds.
	HTTPLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		AnalysisRequestsTotal,
		AnalysisLatencySeconds,
		HTTPLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures HTTP latency for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		HTTPLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
