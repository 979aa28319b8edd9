package middleware

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
)

// KeyFunc selects the rate limit key of a request.
type KeyFunc func(r *http.Request) string

// KeyByIP keys buckets by client IP.
func KeyByIP(r *http.Request) string {
	return ClientIP(r)
}

// KeyByUser keys buckets by the authenticated user, falling back to the
// client IP before [Guard] has run.
func KeyByUser(r *http.Request) string {
	if res, ok := AccessResultFromContext(r.Context()); ok && res.UserID != "" {
		return "u:" + res.UserID
	}
	return ClientIP(r)
}

// RateLimit admits each request against the bucket of class before any
// other work is done. Denied requests get 429 with Retry-After; a limiter
// store failure gets 503.
func RateLimit(engine *goGuard.Engine, class goGuard.RouteClass, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = KeyByIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, http.StatusServiceUnavailable, CodeStoreUnavailable)
				return
			}

			d, err := engine.Admit(r.Context(), class, key(r))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, goGuard.ErrRateLimitExceeded):
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, CodeRateLimited)
			case errors.Is(err, goGuard.ErrStoreUnavailable):
				WriteError(w, http.StatusServiceUnavailable, CodeStoreUnavailable)
			default:
				WriteError(w, http.StatusInternalServerError, CodeInternal)
			}
		})
	}
}
