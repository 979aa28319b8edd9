package middleware

import (
	"net"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// ClientIP returns the host part of r.RemoteAddr. Forwarding headers are
// ignored here; deployments behind a trusted proxy install chi's RealIP
// middleware first (api.Config.TrustProxy).
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestContext extracts the fingerprinting signals of r.
func RequestContext(r *http.Request) goGuard.RequestContext {
	return goGuard.RequestContext{
		IP:             ClientIP(r),
		UserAgent:      r.UserAgent(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		AcceptEncoding: r.Header.Get("Accept-Encoding"),
		AcceptCharset:  r.Header.Get("Accept-Charset"),
	}
}

// WithRequestContext attaches [RequestContext] to every request so security
// events carry the caller's IP and user agent.
func WithRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := goGuard.WithRequestContext(r.Context(), RequestContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
