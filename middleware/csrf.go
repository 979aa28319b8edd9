package middleware

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

// CSRF validates state-changing requests with the double-submit check. Safe
// methods and excluded paths pass through. A token past its rotation age is
// replaced on the response.
//
//	Docs: docs/csrf.md
func CSRF(engine *goGuard.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil || engine.CSRFExempt(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			rotated, err := engine.ValidateCSRF(
				r.Context(),
				r.Header.Get(HeaderCSRFToken),
				cookieValue(r, CookieCSRFToken),
				cookieValue(r, CookieCSRFFP),
				RequestContext(r),
			)
			if err != nil {
				if errors.Is(err, goGuard.ErrCSRFValidationFailed) {
					WriteError(w, http.StatusForbidden, CodeCSRFInvalid)
					return
				}
				WriteError(w, http.StatusInternalServerError, CodeInternal)
				return
			}
			if rotated != nil {
				SetCSRFCookies(w, engine, rotated)
			}

			next.ServeHTTP(w, r)
		})
	}
}
