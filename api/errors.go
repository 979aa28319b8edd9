package api

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
)

// writeEngineError maps engine sentinels to status codes. Not-found and
// not-owned share one response so session existence is never confirmed.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goGuard.ErrStoreUnavailable):
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.CodeStoreUnavailable)
	case errors.Is(err, goGuard.ErrRateLimitExceeded):
		middleware.WriteError(w, http.StatusTooManyRequests, middleware.CodeRateLimited)
	case errors.Is(err, goGuard.ErrSessionNotFound),
		errors.Is(err, goGuard.ErrSessionNotOwned),
		errors.Is(err, goGuard.ErrSessionInactive),
		errors.Is(err, goGuard.ErrDeviceNotFound):
		middleware.WriteError(w, http.StatusForbidden, middleware.CodeInvalidSession)
	case errors.Is(err, goGuard.ErrTrustedDeviceLimit),
		errors.Is(err, goGuard.ErrIdentityInvalid):
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest)
	case errors.Is(err, goGuard.ErrTokenInvalid),
		errors.Is(err, goGuard.ErrFamilyRevoked),
		errors.Is(err, goGuard.ErrFamilyExpired):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized)
	default:
		h.logger.Error().Err(err).Msg("api.unhandled_error")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.CodeInternal)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter) {
	middleware.WriteError(w, http.StatusBadRequest, middleware.CodeBadRequest)
}
