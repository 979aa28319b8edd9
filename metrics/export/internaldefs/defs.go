package internaldefs

import (
	goGuard "github.com/MrEthical07/goGuard"
)

// CounterDef binds a goGuard counter slot to its exported name.
type CounterDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// HistogramDef binds a goGuard latency histogram to its exported name.
type HistogramDef struct {
	ID   goGuard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goGuard.MetricIssueSuccess, Name: "goguard_issue_success_total", Help: "Token pairs issued."},
	{ID: goGuard.MetricIssueFailure, Name: "goguard_issue_failure_total", Help: "Failed token issuance."},
	{ID: goGuard.MetricRefreshSuccess, Name: "goguard_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: goGuard.MetricRefreshFailure, Name: "goguard_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: goGuard.MetricRefreshReuseDetected, Name: "goguard_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation."},
	{ID: goGuard.MetricFamilyRevoked, Name: "goguard_family_revoked_total", Help: "Token families revoked."},
	{ID: goGuard.MetricFamilyExpired, Name: "goguard_family_expired_total", Help: "Refresh attempts on families past their absolute lifetime."},
	{ID: goGuard.MetricStoreUnavailable, Name: "goguard_store_unavailable_total", Help: "Store calls that failed or timed out."},
	{ID: goGuard.MetricRateLimitHit, Name: "goguard_rate_limit_hit_total", Help: "Requests denied by the rate limiter."},
	{ID: goGuard.MetricSessionCreated, Name: "goguard_session_created_total", Help: "Created sessions."},
	{ID: goGuard.MetricSessionInvalidated, Name: "goguard_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: goGuard.MetricSessionEvicted, Name: "goguard_session_evicted_total", Help: "Sessions ended by the per-user cap."},
	{ID: goGuard.MetricSessionExpired, Name: "goguard_session_expired_total", Help: "Sessions ended by idle or absolute timeout."},
	{ID: goGuard.MetricLoginSuccess, Name: "goguard_login_success_total", Help: "Successful logins."},
	{ID: goGuard.MetricLoginFailure, Name: "goguard_login_failure_total", Help: "Failed logins."},
	{ID: goGuard.MetricLogout, Name: "goguard_logout_total", Help: "Single-session logouts."},
	{ID: goGuard.MetricLogoutAll, Name: "goguard_logout_all_total", Help: "Logout-all operations."},
	{ID: goGuard.MetricDeviceRegistered, Name: "goguard_device_registered_total", Help: "Device registrations and refreshes."},
	{ID: goGuard.MetricDeviceTrusted, Name: "goguard_device_trusted_total", Help: "Devices marked trusted."},
	{ID: goGuard.MetricCSRFIssued, Name: "goguard_csrf_issued_total", Help: "CSRF tokens issued."},
	{ID: goGuard.MetricCSRFFailure, Name: "goguard_csrf_failure_total", Help: "Rejected CSRF validations."},
	{ID: goGuard.MetricCSRFRotated, Name: "goguard_csrf_rotated_total", Help: "CSRF tokens replaced during validation."},
	{ID: goGuard.MetricSuspiciousActivity, Name: "goguard_suspicious_activity_total", Help: "Suspicious activity checks that flagged a user."},
}

// HistogramDefs lists the exported latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: goGuard.MetricValidateLatency, Name: "goguard_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: goGuard.MetricRotateLatency, Name: "goguard_rotate_latency_seconds", Help: "Refresh rotation latency."},
}

// HistogramBounds are the upper bounds in seconds of the first seven buckets.
// The eighth bucket is +Inf.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters
// without native histogram labels.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, padding missing buckets
// with zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}

// AuditDroppedName is the counter exported for audit events lost to
// dispatcher backpressure.
const AuditDroppedName = "goguard_audit_dropped_total"

// AuditDroppedHelp describes AuditDroppedName.
const AuditDroppedHelp = "Security events dropped because the audit buffer was full."
