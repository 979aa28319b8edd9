package goGuard

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type requestContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. Security events use
// it when no RequestContext is attached.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithRequestContext attaches the full request attributes to ctx. It also
// sets the client IP and user agent.
//
//	Docs: docs/middleware.md
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	ctx = context.WithValue(ctx, requestContextKey{}, rc)
	ctx = WithClientIP(ctx, rc.IP)
	return WithUserAgent(ctx, rc.UserAgent)
}

// RequestContextFrom returns the request attributes attached to ctx.
func RequestContextFrom(ctx context.Context) (RequestContext, bool) {
	if ctx == nil {
		return RequestContext{}, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(RequestContext)
	return rc, ok
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}
