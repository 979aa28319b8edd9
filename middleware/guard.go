package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goGuard "github.com/MrEthical07/goGuard"
)

type accessResultContextKey struct{}

// AccessResultFromContext returns the result stored by [Guard].
func AccessResultFromContext(ctx context.Context) (*goGuard.AccessResult, bool) {
	res, ok := ctx.Value(accessResultContextKey{}).(*goGuard.AccessResult)
	return res, ok
}

// WithAccessResult stores res in ctx the way [Guard] does. Intended for
// handler tests.
func WithAccessResult(ctx context.Context, res *goGuard.AccessResult) context.Context {
	return context.WithValue(ctx, accessResultContextKey{}, res)
}

// Guard rejects requests without a valid access token with 401. A store
// failure in strict mode is reported as 503.
//
//	Docs: docs/middleware.md
func Guard(engine *goGuard.Engine, routeMode goGuard.RouteMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized)
				return
			}

			token, ok := AccessToken(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized)
				return
			}

			res, err := engine.Authenticate(r.Context(), token, routeMode)
			if err != nil {
				if errors.Is(err, goGuard.ErrStoreUnavailable) {
					WriteError(w, http.StatusServiceUnavailable, CodeStoreUnavailable)
					return
				}
				WriteError(w, http.StatusUnauthorized, CodeUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccessResult(r.Context(), res)))
		})
	}
}

// AccessToken returns the bearer token of r, or the access_token cookie
// when no Authorization header is present.
func AccessToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		return bearerToken(header)
	}
	c, err := r.Cookie(CookieAccessToken)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
