package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	CredentialSelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_selections_total",
			Help: "Total number of credentials handed out by service and rotation strategy",
		},
		[]string{"service", "strategy"},
	)
	CredentialDemotionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_demotions_total",
			Help: "Total number of credentials marked failed by service",
		},
		[]string{"service"},
	)
	CredentialPoolResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_pool_resets_total",
			Help: "Total number of failed-set resets by service and reason (exhausted, manual)",
		},
		[]string{"service", "reason"},
	)
	CredentialPoolAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "credential_pool_available",
			Help: "Number of credentials currently available per service",
		},
		[]string{"service"},
	)

	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Total number of upstream call attempts by service and outcome",
		},
		[]string{"service", "outcome"},
	)
	UpstreamAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_attempt_duration_seconds",
			Help:    "Upstream attempt duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	VideoCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_cache_lookups_total",
			Help: "Video metadata cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
	PromptTokens = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_prompt_tokens",
			Help:    "Estimated prompt tokens per generation request",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		},
		[]string{"model"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(CredentialSelectionsTotal)
	prometheus.MustRegister(CredentialDemotionsTotal)
	prometheus.MustRegister(CredentialPoolResetsTotal)
	prometheus.MustRegister(CredentialPoolAvailable)
	prometheus.MustRegister(UpstreamAttemptsTotal)
	prometheus.MustRegister(UpstreamAttemptDuration)
	prometheus.MustRegister(VideoCacheLookupsTotal)
	prometheus.MustRegister(PromptTokens)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveCacheLookup records the outcome of a video cache lookup.
func ObserveCacheLookup(hit bool, err error) {
	switch {
	case err != nil:
		VideoCacheLookupsTotal.WithLabelValues("error").Inc()
	case hit:
		VideoCacheLookupsTotal.WithLabelValues("hit").Inc()
	default:
		VideoCacheLookupsTotal.WithLabelValues("miss").Inc()
	}
}
