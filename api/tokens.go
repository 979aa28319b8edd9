package api

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"omitempty,max=4096"`
}

// refreshTokenFrom prefers the body over the refresh_token cookie.
func (h *Handler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) (string, error) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		return "", err
	}
	if err := h.validate.Struct(req); err != nil {
		return "", err
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}
	if c, err := r.Cookie(middleware.CookieRefreshToken); err == nil {
		return c.Value, nil
	}
	return "", nil
}

// refresh serves POST /auth/token/refresh.
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		h.badRequest(w)
		return
	}
	if token == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.CodeRefreshTokenRequired)
		return
	}

	pair, err := h.engine.Rotate(r.Context(), token)
	if err != nil {
		middleware.ClearTokenCookies(w, h.engine)
		switch {
		case errors.Is(err, goGuard.ErrRotationFailed):
			middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeTokenRotationFailed)
		case errors.Is(err, goGuard.ErrTokenInvalid),
			errors.Is(err, goGuard.ErrFamilyRevoked),
			errors.Is(err, goGuard.ErrFamilyExpired):
			middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeInvalidRefreshToken)
		default:
			h.writeEngineError(w, err)
		}
		return
	}

	middleware.SetTokenCookies(w, h.engine, pair)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"tokens": newTokensView(pair),
	})
}

// refreshStatus serves GET /auth/token/refresh. It never touches the
// refresh store.
func (h *Handler) refreshStatus(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(middleware.CookieRefreshToken)
	if err != nil || c.Value == "" {
		middleware.WriteJSON(w, http.StatusOK, map[string]any{
			"hasRefreshToken": false,
			"canRefresh":      false,
		})
		return
	}

	res := h.engine.ValidateRefreshToken(r.Context(), c.Value, goGuard.RefreshValidationOptions{})
	body := map[string]any{
		"hasRefreshToken": true,
		"canRefresh":      res.Valid,
	}
	if res.Valid {
		body["expiresAt"] = res.ExpiresAt
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

// revokeRefresh serves DELETE /auth/token/refresh. An invalid or missing
// token still clears the cookies.
func (h *Handler) revokeRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := h.refreshTokenFrom(w, r)
	if err != nil {
		h.badRequest(w)
		return
	}

	if token != "" {
		if err := h.engine.RevokeRefreshToken(r.Context(), token); err != nil && !errors.Is(err, goGuard.ErrTokenInvalid) {
			h.writeEngineError(w, err)
			return
		}
	}

	middleware.ClearTokenCookies(w, h.engine)
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
