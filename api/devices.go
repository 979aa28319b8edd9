package api

import (
	"net/http"

	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/middleware"
)

type updateDeviceRequest struct {
	DeviceID string `json:"deviceId" validate:"required,max=64"`
	Action   string `json:"action" validate:"required,oneof=trust deactivate"`
}

// listDevices serves GET /auth/sessions/devices with the caller's devices
// and a suspicious activity summary. The summary is omitted when it cannot
// be computed.
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	auth := caller(r)
	includeInactive := queryBool(r, "include_inactive")

	devices, err := h.engine.GetUserDevices(r.Context(), auth.UserID, includeInactive)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	views := make([]*deviceView, 0, len(devices))
	trusted, active := 0, 0
	for _, d := range devices {
		views = append(views, newDeviceView(d))
		if d.Trusted {
			trusted++
		}
		if d.Active {
			active++
		}
	}

	body := map[string]any{
		"devices":      views,
		"total":        len(views),
		"trustedCount": trusted,
		"activeCount":  active,
	}
	report, err := h.engine.CheckSuspiciousActivity(r.Context(), auth.UserID)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", auth.UserID).Msg("api.suspicion_check_skipped")
	} else {
		body["suspiciousActivity"] = map[string]any{
			"suspicious": report.Suspicious,
			"reasons":    report.Reasons,
		}
	}
	middleware.WriteJSON(w, http.StatusOK, body)
}

// updateDevice serves PUT /auth/sessions/devices.
func (h *Handler) updateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.badRequest(w)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w)
		return
	}

	auth := caller(r)
	var (
		d   *device.Device
		err error
	)
	switch req.Action {
	case "trust":
		d, err = h.engine.TrustDevice(r.Context(), auth.UserID, req.DeviceID)
	default:
		d, err = h.engine.DeactivateDevice(r.Context(), auth.UserID, req.DeviceID)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"device": newDeviceView(d),
		"action": req.Action,
	})
}
