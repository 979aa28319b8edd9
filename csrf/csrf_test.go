package csrf

import (
	"errors"
	"testing"
	"time"
)

type csrfHarness struct {
	p   *Protector
	now time.Time
}

func newCSRFHarness(t *testing.T) *csrfHarness {
	t.Helper()
	h := &csrfHarness{now: time.Unix(1_700_000_000, 0)}
	p, err := NewProtector([]byte("integrity-key"), []byte("fingerprint-key"), Config{MaxAge: time.Hour}, func() time.Time { return h.now })
	if err != nil {
		t.Fatalf("new protector: %v", err)
	}
	h.p = p
	return h
}

var browser = Signals{
	UserAgent:      "Mozilla/5.0",
	AcceptLanguage: "en-US",
	AcceptEncoding: "gzip, br",
	IP:             "203.0.113.7",
}

func issueEncoded(t *testing.T, h *csrfHarness) (Token, string) {
	t.Helper()
	tok, err := h.p.Issue(browser)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	enc, err := Encode(tok)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return tok, enc
}

func TestValidateRoundTrip(t *testing.T) {
	h := newCSRFHarness(t)
	tok, cookie := issueEncoded(t, h)

	h.now = h.now.Add(10 * time.Minute)
	res, err := h.p.Validate(tok.Value, cookie, tok.Fingerprint, browser)
	if err != nil {
		t.Fatalf("expected valid token, got check=%q err=%v", res.Check, err)
	}
	if res.Rotated != nil {
		t.Fatal("young token should not rotate")
	}
}

func TestValidateRejectsEachMutation(t *testing.T) {
	h := newCSRFHarness(t)
	tok, cookie := issueEncoded(t, h)

	otherUA := browser
	otherUA.UserAgent = "curl/8.0"

	tamperedHash := tok
	tamperedHash.IntegrityHash = tok.IntegrityHash[:len(tok.IntegrityHash)-1] + flip(tok.IntegrityHash[len(tok.IntegrityHash)-1])
	tamperedHashCookie, _ := Encode(tamperedHash)

	shiftedTime := tok
	shiftedTime.Timestamp += 1000
	shiftedTimeCookie, _ := Encode(shiftedTime)

	swappedValue := tok
	swappedValue.Value = flip(tok.Value[0]) + tok.Value[1:]
	swappedValueCookie, _ := Encode(swappedValue)

	cases := []struct {
		name     string
		provided string
		cookie   string
		fpCookie string
		sig      Signals
		advance  time.Duration
		want     Check
	}{
		{"token", flip(tok.Value[0]) + tok.Value[1:], cookie, tok.Fingerprint, browser, 0, CheckDoubleSubmit},
		{"fingerprint input", tok.Value, cookie, tok.Fingerprint, otherUA, 0, CheckFingerprint},
		{"fingerprint cookie", tok.Value, cookie, "", browser, 0, CheckFingerprint},
		{"expired", tok.Value, cookie, tok.Fingerprint, browser, time.Hour + time.Second, CheckAge},
		{"integrity hash", tok.Value, tamperedHashCookie, tok.Fingerprint, browser, 0, CheckIntegrity},
		{"timestamp", tok.Value, shiftedTimeCookie, tok.Fingerprint, browser, 0, CheckIntegrity},
		{"stored value", tok.Value, swappedValueCookie, tok.Fingerprint, browser, 0, CheckIntegrity},
		{"garbage cookie", tok.Value, "%%%", tok.Fingerprint, browser, 0, CheckMalformed},
		{"missing header", "", cookie, tok.Fingerprint, browser, 0, CheckMalformed},
	}

	base := h.now
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h.now = base.Add(tc.advance)
			res, err := h.p.Validate(tc.provided, tc.cookie, tc.fpCookie, tc.sig)
			if !errors.Is(err, ErrValidationFailed) {
				t.Fatalf("expected failure, got %v", err)
			}
			if res.Check != tc.want {
				t.Fatalf("expected check %q, got %q", tc.want, res.Check)
			}
		})
	}
}

func TestValidateRotatesPastHalfLife(t *testing.T) {
	h := newCSRFHarness(t)
	tok, cookie := issueEncoded(t, h)

	h.now = h.now.Add(31 * time.Minute)
	res, err := h.p.Validate(tok.Value, cookie, tok.Fingerprint, browser)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.Rotated == nil {
		t.Fatal("expected rotation past half of max age")
	}
	if res.Rotated.Value == tok.Value || res.Rotated.Fingerprint != tok.Fingerprint {
		t.Fatalf("unexpected rotated token %+v", res.Rotated)
	}
}

func TestFingerprintIncludesIP(t *testing.T) {
	h := newCSRFHarness(t)
	moved := browser
	moved.IP = "198.51.100.1"
	if h.p.Fingerprint(browser) == h.p.Fingerprint(moved) {
		t.Fatal("csrf fingerprint must bind the client ip")
	}
}

func TestProtectedAndExcluded(t *testing.T) {
	for _, m := range []string{"POST", "put", "PATCH", "DELETE"} {
		if !Protected(m) {
			t.Fatalf("%s should be protected", m)
		}
	}
	for _, m := range []string{"GET", "HEAD", "OPTIONS"} {
		if Protected(m) {
			t.Fatalf("%s should not be protected", m)
		}
	}
	prefixes := []string{"/auth/login", "/auth/callback"}
	if !Excluded("/auth/login/provider", prefixes) || Excluded("/auth/sessions", prefixes) {
		t.Fatal("unexpected exclusion result")
	}
}

func TestNewProtectorValidation(t *testing.T) {
	if _, err := NewProtector(nil, []byte("k"), Config{MaxAge: time.Hour}, nil); err == nil {
		t.Fatal("expected empty key error")
	}
	if _, err := NewProtector([]byte("k"), []byte("k"), Config{}, nil); err == nil {
		t.Fatal("expected max age error")
	}
	if _, err := NewProtector([]byte("k"), []byte("k"), Config{MaxAge: time.Minute, RotateAfter: time.Hour}, nil); err == nil {
		t.Fatal("expected rotate-after error")
	}
}

func flip(b byte) string {
	if b == '0' {
		return "1"
	}
	return "0"
}
