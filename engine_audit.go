package goGuard

import (
	"context"
	"errors"
	"strconv"
)

const (
	eventTokenIssued            = "token_issued"
	eventTokenRefreshed         = "token_refreshed"
	eventRefreshInvalid         = "refresh_invalid"
	eventRefreshReuseDetected   = "refresh_reuse_detected"
	eventRefreshOnRevokedFamily = "refresh_on_revoked_family"
	eventFamilyRevoked          = "family_revoked"
	eventFamilyExpired          = "family_expired"
	eventSessionCreated         = "session_created"
	eventSessionInvalidated     = "session_invalidated"
	eventSessionEvicted         = "session_evicted"
	eventSessionExpired         = "session_expired"
	eventLoginSuccess           = "login_success"
	eventLoginFailure           = "login_failure"
	eventLogout                 = "logout"
	eventLogoutAll              = "logout_all"
	eventDeviceRegistered       = "device_registered"
	eventDeviceUpdated          = "device_updated"
	eventDeviceTrusted          = "device_trusted"
	eventDeviceDeactivated      = "device_deactivated"
	eventCSRFIssued             = "csrf_token_issued"
	eventCSRFFailed             = "csrf_validation_failed"
	eventRateLimitExceeded      = "rate_limit_exceeded"
	eventSuspiciousActivity     = "suspicious_activity"
	eventStoreUnavailable       = "store_unavailable"
)

// Session end reasons recorded on sessions and families.
const (
	ReasonLogout              = "logout"
	ReasonLogoutAll           = "logout_all"
	ReasonMaxSessionsExceeded = "max_sessions_exceeded"
	ReasonIdleTimeout         = "idle_timeout"
	ReasonExpired             = "expired"
	ReasonUserRevoked         = "user_revoked"
	ReasonSecurityBreach      = "security_breach"
	ReasonSuspiciousActivity  = "suspicious_activity"
	ReasonAdminAction         = "admin_action"
)

// eventFields are the optional identifiers carried by one security event.
type eventFields struct {
	userID    string
	sessionID string
	familyID  string
	rc        *RequestContext
	reason    string
	metadata  func() map[string]string
}

func (e *Engine) emitEvent(ctx context.Context, eventType string, severity Severity, success bool, f eventFields) {
	if e == nil || e.audit == nil {
		return
	}

	event := SecurityEvent{
		EventType: eventType,
		Severity:  severity,
		UserID:    f.userID,
		SessionID: f.sessionID,
		FamilyID:  f.familyID,
		Success:   success,
		Reason:    f.reason,
	}
	switch {
	case f.rc != nil:
		event.IP = f.rc.IP
		event.UserAgent = f.rc.UserAgent
	default:
		if rc, ok := RequestContextFrom(ctx); ok {
			event.IP = rc.IP
			event.UserAgent = rc.UserAgent
		} else {
			event.IP = clientIPFromContext(ctx)
			event.UserAgent = userAgentFromContext(ctx)
		}
	}
	if f.metadata != nil {
		event.Metadata = f.metadata()
	}
	if e.now != nil {
		event.Timestamp = e.now()
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, routeClass, key string) {
	e.metricInc(MetricRateLimitHit)
	e.emitEvent(ctx, eventRateLimitExceeded, SeverityMedium, false, eventFields{
		reason: routeClass,
		metadata: func() map[string]string {
			return map[string]string{
				"route_class": routeClass,
				"key":         key,
			}
		},
	})
	e.recordFailure(ctx, FailureRateLimit, "", "")
}

// errorReason maps an engine error to the short reason code carried on
// security events.
func errorReason(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrTokenInvalid):
		return "invalid_token"
	case errors.Is(err, ErrRotationConflict):
		return "rotation_conflict"
	case errors.Is(err, ErrFamilyRevoked):
		return "family_revoked"
	case errors.Is(err, ErrFamilyExpired):
		return "family_expired"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrRotationFailed):
		return "rotation_failed"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionNotOwned):
		return "session_not_owned"
	case errors.Is(err, ErrSessionInactive):
		return "session_inactive"
	case errors.Is(err, ErrSessionVersionStale):
		return "session_version_stale"
	case errors.Is(err, ErrCSRFValidationFailed):
		return "csrf_failed"
	case errors.Is(err, ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, ErrTrustedDeviceLimit):
		return "trusted_device_limit"
	case errors.Is(err, ErrIdentityInvalid):
		return "identity_invalid"
	default:
		return "internal_error"
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}
