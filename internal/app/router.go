// Package app wires the HTTP router and its readiness dependencies.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/recipe-extractor/internal/adapter/httpserver"
	"github.com/fairyhunter13/recipe-extractor/internal/adapter/observability"
	"github.com/fairyhunter13/recipe-extractor/internal/config"
	"github.com/fairyhunter13/recipe-extractor/internal/service/ratelimiter"
)

// ExtractBucket names the shared rate limit bucket of the extraction endpoint.
const ExtractBucket = "extract"

const defaultRequestTimeout = 90 * time.Second

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// limiter may be nil, in which case extraction is only limited per instance.
func BuildRouter(cfg config.Config, srv *httpserver.Server, limiter ratelimiter.Limiter) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	perMin := cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 30
	}

	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(timeout))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/v1/videos/{id}", srv.VideoHandler())
	r.Get("/v1/videos", srv.SearchHandler())

	// Extraction spends both quotas; limit per instance and across instances.
	r.Group(func(wr chi.Router) {
		wr.Use(httprate.LimitByIP(perMin, time.Minute))
		wr.Use(httpserver.RateLimit(limiter, ExtractBucket))
		wr.Post("/v1/recipes/extract", srv.ExtractHandler())
	})

	r.Route("/admin/api/keys", func(ar chi.Router) {
		ar.Use(httprate.LimitByIP(perMin, time.Minute))
		ar.Use(srv.AdminAPIGuard())
		ar.Get("/stats", srv.KeyStatsHandler())
		ar.Post("/reset", srv.KeyResetHandler())
	})

	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}
