package test

import (
	"context"
	"net/http"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/MrEthical07/goGuard/session"
)

// Guards the public API shape consumers compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goGuard.New

	var _ *goGuard.Engine
	var _ goGuard.Config
	var _ goGuard.TokenPair
	var _ goGuard.AccessResult
	var _ goGuard.LoginResult
	var _ goGuard.SecuritySink
	var _ goGuard.SecurityEvent

	var _ error = goGuard.ErrTokenInvalid
	var _ error = goGuard.ErrFamilyRevoked
	var _ error = goGuard.ErrRotationFailed
	var _ error = goGuard.ErrSessionNotFound
	var _ error = goGuard.ErrSessionNotOwned
	var _ error = goGuard.ErrCSRFValidationFailed
	var _ error = goGuard.ErrRateLimitExceeded
	var _ error = goGuard.ErrStoreUnavailable

	var _ func(*goGuard.Engine, goGuard.RouteMode) func(http.Handler) http.Handler = middleware.Guard
	var _ func(*goGuard.Engine) func(http.Handler) http.Handler = middleware.RequireJWTOnly
	var _ func(*goGuard.Engine) func(http.Handler) http.Handler = middleware.RequireStrict
	var _ func(*goGuard.Engine) func(http.Handler) http.Handler = middleware.CSRF

	var _ func(*goGuard.Engine, context.Context, string, string, []string) (*goGuard.TokenPair, error) = (*goGuard.Engine).Issue
	var _ func(*goGuard.Engine, context.Context, string) (*goGuard.TokenPair, error) = (*goGuard.Engine).Rotate
	var _ func(*goGuard.Engine, string) (*goGuard.AccessResult, error) = (*goGuard.Engine).VerifyAccess
	var _ func(*goGuard.Engine, context.Context, string, goGuard.RequestContext, []string) (*session.Session, error) = (*goGuard.Engine).CreateSession
	var _ func(*goGuard.Engine, context.Context, string, string, string) error = (*goGuard.Engine).InvalidateSession
	var _ func(*goGuard.Engine, context.Context, string, string, string) (int, error) = (*goGuard.Engine).InvalidateAllSessions
	var _ func(*goGuard.Engine, context.Context, goGuard.Identity, goGuard.RequestContext) (*goGuard.LoginResult, error) = (*goGuard.Engine).Login
	var _ func(*goGuard.Engine, context.Context, string, string) error = (*goGuard.Engine).Logout
}
