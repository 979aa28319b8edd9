package api

import (
	"errors"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/middleware"
)

type loginRequest struct {
	Assertion string `json:"assertion" validate:"required,max=8192"`
}

// login serves POST /auth/login: a verified provider assertion becomes a
// session, a device record, a token pair and a CSRF token.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w)
		return
	}

	rc := middleware.RequestContext(r)
	id, err := h.identity.Verify(req.Assertion)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidAssertion) {
			h.engine.ReportLoginFailure(r.Context(), rc)
			middleware.WriteError(w, http.StatusUnauthorized, middleware.CodeUnauthorized)
			return
		}
		h.writeEngineError(w, err)
		return
	}

	res, err := h.engine.Login(r.Context(), id, rc)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	middleware.SetTokenCookies(w, h.engine, res.Tokens)
	body := map[string]any{
		"session":   newSessionView(res.Session, res.Session.SessionID),
		"device":    newDeviceView(res.Device),
		"newDevice": res.NewDevice,
		"tokens":    newTokensView(res.Tokens),
	}

	if h.engine.CSRFEnabled() {
		tok, err := h.engine.IssueCSRFToken(r.Context(), rc)
		if err != nil {
			h.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("api.login_csrf_skipped")
		} else {
			middleware.SetCSRFCookies(w, h.engine, tok)
			body["csrfToken"] = tok.Value
		}
	}

	middleware.WriteJSON(w, http.StatusOK, body)
}

// logout serves POST /auth/logout for the session of the access token.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	auth := caller(r)
	if err := h.engine.Logout(r.Context(), auth.SessionID, auth.UserID); err != nil {
		h.writeEngineError(w, err)
		return
	}

	middleware.ClearTokenCookies(w, h.engine)
	middleware.ClearCSRFCookies(w, h.engine)
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

// issueCSRF serves GET /auth/csrf.
func (h *Handler) issueCSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := h.engine.IssueCSRFToken(r.Context(), middleware.RequestContext(r))
	if err != nil {
		if errors.Is(err, goGuard.ErrCSRFDisabled) {
			middleware.WriteError(w, http.StatusNotFound, middleware.CodeBadRequest)
			return
		}
		h.writeEngineError(w, err)
		return
	}

	middleware.SetCSRFCookies(w, h.engine, tok)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"csrfToken": tok.Value,
		"expiresAt": tok.ExpiresAt,
	})
}
