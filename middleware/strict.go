package middleware

import (
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// RequireStrict rejects tokens whose session has ended or gone idle, at the
// cost of one Redis read per request.
func RequireStrict(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return Guard(engine, goGuard.ModeStrict)
}
