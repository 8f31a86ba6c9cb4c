package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/httprate"

	"github.com/fairyhunter13/recipe-extractor/internal/domain"
	"github.com/fairyhunter13/recipe-extractor/internal/service/ratelimiter"
)

// RateLimit charges one token of bucket per request, keyed by client IP.
// A nil limiter disables the check. Limiter errors fail open.
func RateLimit(l ratelimiter.Limiter, bucket string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := httprate.KeyByIP(r)
			if err != nil {
				subject = r.RemoteAddr
			}
			ok, retryAfter, err := l.Allow(r.Context(), bucket, subject, 1)
			if err != nil {
				LoggerFrom(r).Warn("rate limiter unavailable, allowing request", "bucket", bucket, "error", err)
			}
			if !ok {
				secs := int(math.Ceil(retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, r, fmt.Errorf("%w: %s", domain.ErrRateLimited, bucket), map[string]int{"retry_after_seconds": secs})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
