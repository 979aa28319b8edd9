package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// RequireJWTOnly returns middleware that overrides the validation mode to
// [goGuard.ModeJWTOnly] for the wrapped handler, skipping Redis entirely.
//
//	Docs: docs/middleware.md, docs/tokens.md
func RequireJWTOnly(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.ModeJWTOnly)
}
