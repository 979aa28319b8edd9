package goGuard

import (
	"context"

	"github.com/MrEthical07/goGuard/internal/rate"
)

// Failure kinds counted by the failure-velocity detector.
const (
	FailureRefresh   = "refresh"
	FailureCSRF      = "csrf"
	FailureLogin     = "login"
	FailureRateLimit = "rate_limit"
)

const signalFailureVelocity = "failure_velocity"

// failureScope is one counter the detector keeps per failure.
type failureScope struct {
	scope string
	value string
}

// recordFailure counts one failed attempt against the client IP and, when
// known, the user. A key that empties its Threat.Failures bucket raises
// suspicious_activity once per window. Limiter errors are logged and never
// change the outcome of the failed call.
//
//	Performance: 1 EVALSHA per known key, 2 when the threshold is crossed.
func (e *Engine) recordFailure(ctx context.Context, kind, ip, userID string) {
	if e == nil || e.limiter == nil || !e.config.Threat.Enabled {
		return
	}
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}

	scopes := make([]failureScope, 0, 2)
	if ip != "" {
		scopes = append(scopes, failureScope{scope: "ip", value: ip})
	}
	if userID != "" {
		scopes = append(scopes, failureScope{scope: "user", value: userID})
	}

	for _, s := range scopes {
		if e.failureThresholdCrossed(ctx, s) {
			e.emitFailureVelocity(ctx, kind, s, ip, userID)
		}
	}
}

// failureThresholdCrossed takes one failure token for s and reports whether
// an alert should fire now.
func (e *Engine) failureThresholdCrossed(ctx context.Context, s failureScope) bool {
	rule := e.config.Threat.Failures
	key := s.scope + ":" + s.value

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	d, err := e.limiter.Admit(opCtx, rule, key)
	if err != nil {
		e.warnf("goGuard: failure counter unavailable", "scope", s.scope, "error", err)
		return false
	}
	if d.Allowed {
		return false
	}

	alert := rate.Rule{Name: rule.Name + "_alert", MaxTokens: 1, RefillRate: 1, Window: rule.Window}
	d, err = e.limiter.Admit(opCtx, alert, key)
	if err != nil {
		e.warnf("goGuard: failure alert counter unavailable", "scope", s.scope, "error", err)
		return false
	}
	return d.Allowed
}

func (e *Engine) emitFailureVelocity(ctx context.Context, kind string, s failureScope, ip, userID string) {
	rule := e.config.Threat.Failures

	e.metricInc(MetricSuspiciousActivity)
	fields := eventFields{
		reason: signalFailureVelocity,
		metadata: func() map[string]string {
			return map[string]string{
				"signal":    signalFailureVelocity,
				"scope":     s.scope,
				"kind":      kind,
				"threshold": itoa(rule.MaxTokens),
				"window":    rule.Window.String(),
			}
		},
	}
	if s.scope == "user" {
		fields.userID = userID
	}
	if rc, ok := RequestContextFrom(ctx); ok {
		fields.rc = &rc
	} else if ip != "" {
		fields.rc = &RequestContext{IP: ip, UserAgent: userAgentFromContext(ctx)}
	}
	e.emitEvent(ctx, eventSuspiciousActivity, SeverityHigh, false, fields)
}

// ReportLoginFailure records a login attempt that failed before reaching
// [Engine.Login], such as an assertion the identity provider rejected. It
// feeds the same events and failure counters as a failed Login.
func (e *Engine) ReportLoginFailure(ctx context.Context, rc RequestContext) {
	if e == nil {
		return
	}
	e.loginFailed(ctx, Identity{}, rc, ErrIdentityInvalid)
}
