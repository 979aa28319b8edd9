package goGuard

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/csrf"
)

// CSRFToken is an issued CSRF token in its transport forms.
type CSRFToken struct {
	// Value is echoed by the client in the X-CSRF-Token header.
	Value string
	// Cookie is the encoded token stored in the httpOnly csrf-token cookie.
	Cookie string
	// Fingerprint is stored in the httpOnly csrf-fp cookie.
	Fingerprint string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func csrfSignals(rc RequestContext) csrf.Signals {
	return csrf.Signals{
		UserAgent:      rc.UserAgent,
		AcceptLanguage: rc.AcceptLanguage,
		AcceptEncoding: rc.AcceptEncoding,
		IP:             rc.IP,
	}
}

func (e *Engine) csrfToken(t csrf.Token) (*CSRFToken, error) {
	encoded, err := csrf.Encode(t)
	if err != nil {
		return nil, err
	}
	return &CSRFToken{
		Value:       t.Value,
		Cookie:      encoded,
		Fingerprint: t.Fingerprint,
		IssuedAt:    t.IssuedAt(),
		ExpiresAt:   t.IssuedAt().Add(e.csrf.MaxAge()),
	}, nil
}

// CSRFEnabled reports whether CSRF protection is configured.
func (e *Engine) CSRFEnabled() bool {
	return e != nil && e.csrf != nil
}

// CSRFExempt reports whether a request skips CSRF validation: safe methods
// and paths under CSRF.ExcludedPaths.
func (e *Engine) CSRFExempt(method, path string) bool {
	if !e.CSRFEnabled() {
		return true
	}
	return !csrf.Protected(method) || csrf.Excluded(path, e.config.CSRF.ExcludedPaths)
}

// IssueCSRFToken creates a token bound to the fingerprint of rc. Issuance is
// rate limited per IP under the csrf route class.
//
// IssueCSRFToken returns [ErrCSRFDisabled], [ErrRateLimitExceeded] or
// [ErrStoreUnavailable].
//
//	Docs: docs/csrf.md
func (e *Engine) IssueCSRFToken(ctx context.Context, rc RequestContext) (*CSRFToken, error) {
	if !e.CSRFEnabled() {
		return nil, ErrCSRFDisabled
	}
	if _, err := e.Admit(ctx, RouteCSRF, rc.IP); err != nil {
		return nil, err
	}

	t, err := e.csrf.Issue(csrfSignals(rc))
	if err != nil {
		return nil, err
	}
	out, err := e.csrfToken(t)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricCSRFIssued)
	e.emitEvent(ctx, eventCSRFIssued, SeverityLow, true, eventFields{rc: &rc})
	return out, nil
}

// ValidateCSRF checks a state-changing request. provided comes from the
// X-CSRF-Token header; cookieValue and fingerprintCookie from the csrf-token
// and csrf-fp cookies. A non-nil token is returned when the presented one
// is old enough to be replaced.
//
// Every failure is reported as [ErrCSRFValidationFailed]; the failed check
// is recorded on the security event only.
func (e *Engine) ValidateCSRF(ctx context.Context, provided, cookieValue, fingerprintCookie string, rc RequestContext) (*CSRFToken, error) {
	if !e.CSRFEnabled() {
		return nil, nil
	}

	res, err := e.csrf.Validate(provided, cookieValue, fingerprintCookie, csrfSignals(rc))
	if err != nil {
		if !errors.Is(err, csrf.ErrValidationFailed) {
			e.warnf("goGuard: csrf rotation failed", "error", err)
			return nil, nil
		}
		e.metricInc(MetricCSRFFailure)
		e.emitEvent(ctx, eventCSRFFailed, SeverityHigh, false, eventFields{
			rc:     &rc,
			reason: string(res.Check),
			metadata: func() map[string]string {
				return map[string]string{"age_ms": itoa(int(res.Age.Milliseconds()))}
			},
		})
		e.recordFailure(ctx, FailureCSRF, rc.IP, "")
		return nil, ErrCSRFValidationFailed
	}
	if res.Rotated == nil {
		return nil, nil
	}

	e.metricInc(MetricCSRFRotated)
	return e.csrfToken(*res.Rotated)
}
