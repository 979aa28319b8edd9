package goGuard

import "errors"

var (
	// ErrTokenInvalid is returned for malformed, expired, wrongly signed or
	// wrongly typed tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrFamilyRevoked is returned when a refresh token belongs to a revoked
	// or unknown family. Reuse detection surfaces as this error.
	ErrFamilyRevoked = errors.New("token family revoked")
	// ErrRotationConflict marks a lost compare-and-swap. It is recorded on
	// security events and never returned to callers, who see ErrFamilyRevoked.
	ErrRotationConflict = errors.New("refresh rotation conflict")
	// ErrFamilyExpired is returned when a family passed its absolute lifetime.
	ErrFamilyExpired = errors.New("token family expired")
	// ErrRotationFailed is returned when rotation could not complete. It wraps
	// ErrStoreUnavailable when the store was the cause.
	ErrRotationFailed = errors.New("token rotation failed")

	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotOwned is returned when a caller acts on another user's session.
	ErrSessionNotOwned = errors.New("session not owned by caller")
	ErrSessionInactive = errors.New("session inactive")
	// ErrSessionVersionStale is returned by ValidateSession when the session
	// predates the required version.
	ErrSessionVersionStale = errors.New("session version stale")

	ErrCSRFValidationFailed = errors.New("csrf validation failed")
	// ErrCSRFDisabled is returned by IssueCSRFToken when CSRF.Enabled is false.
	ErrCSRFDisabled      = errors.New("csrf protection disabled")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrStoreUnavailable is returned when a backing store call fails or times out.
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrDeviceNotFound     = errors.New("device not found")
	ErrTrustedDeviceLimit = errors.New("trusted device limit reached")

	// ErrIdentityInvalid is returned by Login for an incomplete identity.
	ErrIdentityInvalid = errors.New("invalid identity")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
