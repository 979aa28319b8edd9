package api

import (
	"net/http"
	"slices"
	"strconv"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/middleware"
)

type createSessionRequest struct {
	Permissions []string `json:"permissions" validate:"omitempty,max=32,dive,required,max=64"`
}

type heartbeatRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

type invalidateRequest struct {
	SessionIDs []string `json:"sessionIds" validate:"required,min=1,max=50,dive,required,max=128"`
	Reason     string   `json:"reason" validate:"omitempty,oneof=logout user_revoked security_breach suspicious_activity"`
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// grantable keeps the requested permissions the caller already holds. An
// empty result falls back to the caller's own set so a session can never
// carry more than the session that created it.
func grantable(requested, held []string) []string {
	out := make([]string, 0, len(requested))
	for _, p := range requested {
		if slices.Contains(held, p) && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), held...)
	}
	return out
}

func caller(r *http.Request) *goGuard.AccessResult {
	res, _ := middleware.AccessResultFromContext(r.Context())
	return res
}

// listSessions serves GET /auth/sessions. Device enrichment is dropped
// rather than failing the request when the device store is down.
func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	auth := caller(r)
	includeDevices := queryBool(r, "include_devices")
	includeInactive := queryBool(r, "include_inactive")

	sessions, err := h.engine.GetUserSessions(r.Context(), auth.UserID, includeInactive)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	var devices map[string]*device.Device
	if includeDevices {
		list, err := h.engine.GetUserDevices(r.Context(), auth.UserID, true)
		if err != nil {
			h.logger.Warn().Err(err).Str("user_id", auth.UserID).Msg("api.device_enrichment_skipped")
		} else {
			devices = make(map[string]*device.Device, len(list))
			for _, d := range list {
				devices[d.DeviceID] = d
			}
		}
	}

	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		v := newSessionView(s, auth.SessionID)
		if d, ok := devices[s.DeviceID]; ok {
			v.Device = newDeviceView(d)
		}
		views = append(views, v)
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"sessions": views,
		"total":    len(views),
		"metadata": map[string]bool{
			"includeDevices":  includeDevices,
			"includeInactive": includeInactive,
		},
	})
}

// createSession serves POST /auth/sessions.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		h.badRequest(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w)
		return
	}

	auth := caller(r)
	perms := grantable(req.Permissions, auth.Permissions)
	sess, dev, err := h.engine.CreateSessionWithDevice(r.Context(), auth.UserID, middleware.RequestContext(r), perms)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	v := newSessionView(sess, auth.SessionID)
	v.Device = newDeviceView(dev)
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"session": v,
		"message": "session created",
	})
}

// heartbeat serves PUT /auth/sessions.
func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w)
		return
	}

	auth := caller(r)
	if _, err := h.engine.GetSession(r.Context(), auth.UserID, req.SessionID); err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.engine.UpdateSessionActivity(r.Context(), req.SessionID, middleware.RequestContext(r)); err != nil {
		h.writeEngineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"message":      "session activity updated",
		"lastActivity": h.engine.Now(),
	})
}

// invalidateSessions serves DELETE /auth/sessions. It succeeds on repeat
// calls; already ended sessions are skipped.
func (h *Handler) invalidateSessions(w http.ResponseWriter, r *http.Request) {
	auth := caller(r)
	q := r.URL.Query()

	var (
		n   int
		err error
	)
	excludeCurrent := queryBool(r, "exclude_current")
	if excludeCurrent {
		keep := q.Get("current_session_id")
		if keep == "" {
			keep = auth.SessionID
		}
		n, err = h.engine.InvalidateAllSessionsExcept(r.Context(), auth.UserID, keep, goGuard.ReasonLogoutAll, auth.UserID)
	} else {
		n, err = h.engine.LogoutAll(r.Context(), auth.UserID)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if !excludeCurrent {
		middleware.ClearTokenCookies(w, h.engine)
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"invalidated":    n,
		"excludeCurrent": excludeCurrent,
	})
}

// invalidateSelected serves POST /auth/sessions/invalidate. Every id must
// belong to the caller; nothing is ended otherwise.
func (h *Handler) invalidateSelected(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = goGuard.ReasonUserRevoked
	}

	auth := caller(r)
	for _, id := range req.SessionIDs {
		if _, err := h.engine.GetSession(r.Context(), auth.UserID, id); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}

	for _, id := range req.SessionIDs {
		if err := h.engine.InvalidateSession(r.Context(), id, reason, auth.UserID); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"invalidated": len(req.SessionIDs),
		"reason":      reason,
	})
}
