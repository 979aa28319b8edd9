package goGuard

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCSRFRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tok, err := env.engine.IssueCSRFToken(ctx, desktopRC)
	if err != nil {
		t.Fatalf("IssueCSRFToken failed: %v", err)
	}
	if !tok.ExpiresAt.Equal(tok.IssuedAt.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s for issue %s", tok.ExpiresAt, tok.IssuedAt)
	}

	rotated, err := env.engine.ValidateCSRF(ctx, tok.Value, tok.Cookie, tok.Fingerprint, desktopRC)
	if err != nil {
		t.Fatalf("ValidateCSRF failed: %v", err)
	}
	if rotated != nil {
		t.Fatal("fresh token must not rotate")
	}
}

func TestCSRFRejectsMutations(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tok, err := env.engine.IssueCSRFToken(ctx, desktopRC)
	if err != nil {
		t.Fatalf("IssueCSRFToken failed: %v", err)
	}

	otherUA := desktopRC
	otherUA.UserAgent = "curl/8.0"
	otherIP := desktopRC
	otherIP.IP = "192.0.2.99"

	cases := []struct {
		name             string
		provided, cookie string
		fingerprint      string
		rc               RequestContext
	}{
		{"empty header", "", tok.Cookie, tok.Fingerprint, desktopRC},
		{"wrong header", tok.Value + "x", tok.Cookie, tok.Fingerprint, desktopRC},
		{"garbage cookie", tok.Value, "not-a-token", tok.Fingerprint, desktopRC},
		{"fingerprint cookie swapped", tok.Value, tok.Cookie, "deadbeef", desktopRC},
		{"user agent changed", tok.Value, tok.Cookie, tok.Fingerprint, otherUA},
		{"ip changed", tok.Value, tok.Cookie, tok.Fingerprint, otherIP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.engine.ValidateCSRF(ctx, tc.provided, tc.cookie, tc.fingerprint, tc.rc); !errors.Is(err, ErrCSRFValidationFailed) {
				t.Fatalf("expected ErrCSRFValidationFailed, got %v", err)
			}
		})
	}

	ev := env.waitEvent(t, eventCSRFFailed)
	if ev.Severity != SeverityHigh || ev.Reason == "" {
		t.Fatalf("unexpected csrf failure event: %+v", ev)
	}
}

func TestCSRFAgeAndRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	tok, err := env.engine.IssueCSRFToken(ctx, desktopRC)
	if err != nil {
		t.Fatalf("IssueCSRFToken failed: %v", err)
	}

	env.clock.Advance(31 * time.Minute)
	rotated, err := env.engine.ValidateCSRF(ctx, tok.Value, tok.Cookie, tok.Fingerprint, desktopRC)
	if err != nil {
		t.Fatalf("ValidateCSRF failed: %v", err)
	}
	if rotated == nil || rotated.Value == tok.Value {
		t.Fatal("token older than RotateAfter must rotate")
	}
	if _, err := env.engine.ValidateCSRF(ctx, rotated.Value, rotated.Cookie, rotated.Fingerprint, desktopRC); err != nil {
		t.Fatalf("rotated token must validate, got %v", err)
	}

	env.clock.Advance(30 * time.Minute)
	if _, err := env.engine.ValidateCSRF(ctx, tok.Value, tok.Cookie, tok.Fingerprint, desktopRC); !errors.Is(err, ErrCSRFValidationFailed) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestCSRFDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.CSRF.Enabled = false
	})
	ctx := context.Background()

	if _, err := env.engine.IssueCSRFToken(ctx, desktopRC); !errors.Is(err, ErrCSRFDisabled) {
		t.Fatalf("expected ErrCSRFDisabled, got %v", err)
	}
	if _, err := env.engine.ValidateCSRF(ctx, "", "", "", desktopRC); err != nil {
		t.Fatalf("disabled protection must accept, got %v", err)
	}
	if !env.engine.CSRFExempt("POST", "/auth/sessions") {
		t.Fatal("every request is exempt when disabled")
	}
}

func TestCSRFExempt(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct {
		method, path string
		want         bool
	}{
		{"GET", "/auth/sessions", true},
		{"HEAD", "/auth/sessions", true},
		{"OPTIONS", "/auth/sessions", true},
		{"POST", "/auth/sessions", false},
		{"DELETE", "/auth/sessions", false},
		{"POST", "/auth/login", true},
		{"POST", "/auth/logout", true},
	}
	for _, tc := range cases {
		if got := env.engine.CSRFExempt(tc.method, tc.path); got != tc.want {
			t.Fatalf("CSRFExempt(%s %s) = %v, want %v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestCSRFIssueIsRateLimited(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.RateLimit.CSRF = RateLimitRule{Name: "csrf", MaxTokens: 2, RefillRate: 1, Window: time.Minute}
	})
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := env.engine.IssueCSRFToken(ctx, desktopRC); err != nil {
			t.Fatalf("issue %d failed: %v", i+1, err)
		}
	}
	if _, err := env.engine.IssueCSRFToken(ctx, desktopRC); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
}
