package csrf

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
)

// ErrValidationFailed is returned for any failed check. The failed check is
// reported in [Result.Check] and must not be shown to clients.
var ErrValidationFailed = errors.New("csrf validation failed")

// Check names one step of validation.
type Check string

const (
	CheckNone         Check = ""
	CheckMalformed    Check = "malformed"
	CheckFingerprint  Check = "fingerprint"
	CheckAge          Check = "age"
	CheckIntegrity    Check = "integrity"
	CheckDoubleSubmit Check = "double_submit"
)

// Token is the issued CSRF triple plus its integrity hash.
type Token struct {
	Value         string `json:"v"`
	Timestamp     int64  `json:"ts"`
	Fingerprint   string `json:"fp"`
	IntegrityHash string `json:"h"`
}

// IssuedAt returns the token timestamp.
func (t Token) IssuedAt() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Signals are the request attributes the fingerprint is derived from.
type Signals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IP             string
}

// Config controls token lifetime.
type Config struct {
	MaxAge      time.Duration
	RotateAfter time.Duration
}

// Result reports the outcome of [Protector.Validate].
type Result struct {
	Check Check
	Age   time.Duration
	// Rotated is set when a valid token is past RotateAfter and a
	// replacement was issued.
	Rotated *Token
}

// Protector issues and validates tokens.
type Protector struct {
	integrityKey   []byte
	fingerprintKey []byte
	cfg            Config
	now            func() time.Time
}

// NewProtector creates a [Protector]. A zero RotateAfter defaults to half of
// MaxAge. A nil clock uses time.Now.
func NewProtector(integrityKey, fingerprintKey []byte, cfg Config, now func() time.Time) (*Protector, error) {
	if len(integrityKey) == 0 || len(fingerprintKey) == 0 {
		return nil, errors.New("csrf keys must be non-empty")
	}
	if cfg.MaxAge <= 0 {
		return nil, errors.New("csrf max age must be > 0")
	}
	if cfg.RotateAfter <= 0 {
		cfg.RotateAfter = cfg.MaxAge / 2
	}
	if cfg.RotateAfter > cfg.MaxAge {
		return nil, errors.New("csrf rotate-after must not exceed max age")
	}
	if now == nil {
		now = time.Now
	}
	return &Protector{
		integrityKey:   append([]byte(nil), integrityKey...),
		fingerprintKey: append([]byte(nil), fingerprintKey...),
		cfg:            cfg,
		now:            now,
	}, nil
}

// MaxAge returns the configured token lifetime.
func (p *Protector) MaxAge() time.Duration { return p.cfg.MaxAge }

// Fingerprint derives the client fingerprint from request signals.
func (p *Protector) Fingerprint(sig Signals) string {
	return internal.KeyedHash(p.fingerprintKey, "|", sig.UserAgent, sig.AcceptLanguage, sig.AcceptEncoding, sig.IP)
}

// Issue creates a token bound to the signals' fingerprint.
func (p *Protector) Issue(sig Signals) (Token, error) {
	value, err := internal.NewCSRFValue()
	if err != nil {
		return Token{}, err
	}
	t := Token{
		Value:       value,
		Timestamp:   p.now().UnixMilli(),
		Fingerprint: p.Fingerprint(sig),
	}
	t.IntegrityHash = p.integrity(t)
	return t, nil
}

func (p *Protector) integrity(t Token) string {
	return internal.KeyedHash(p.integrityKey, ":", t.Value, t.Fingerprint, strconv.FormatInt(t.Timestamp, 10))
}

// Validate checks provided, the header-delivered value, against the token
// encoded in cookieValue. fingerprintCookie is the fingerprint recorded at
// issuance in its own cookie.
//
// Checks run in order and the first failure stops validation:
//  1. the fingerprint recomputed from sig matches the token and fingerprintCookie
//  2. the token is no older than MaxAge
//  3. the integrity hash matches, compared in constant time
//  4. provided equals the token value, compared in constant time
func (p *Protector) Validate(provided, cookieValue, fingerprintCookie string, sig Signals) (Result, error) {
	t, err := Decode(cookieValue)
	if err != nil || strings.TrimSpace(provided) == "" {
		return Result{Check: CheckMalformed}, ErrValidationFailed
	}

	current := p.Fingerprint(sig)
	if !internal.ConstantTimeEqual(current, t.Fingerprint) || !internal.ConstantTimeEqual(current, fingerprintCookie) {
		return Result{Check: CheckFingerprint}, ErrValidationFailed
	}

	now := p.now()
	age := now.Sub(t.IssuedAt())
	if age < 0 || age > p.cfg.MaxAge {
		return Result{Check: CheckAge, Age: age}, ErrValidationFailed
	}

	if !internal.ConstantTimeEqual(p.integrity(t), t.IntegrityHash) {
		return Result{Check: CheckIntegrity, Age: age}, ErrValidationFailed
	}

	if !internal.ConstantTimeEqual(provided, t.Value) {
		return Result{Check: CheckDoubleSubmit, Age: age}, ErrValidationFailed
	}

	res := Result{Age: age}
	if age > p.cfg.RotateAfter {
		next, err := p.Issue(sig)
		if err != nil {
			return res, fmt.Errorf("csrf rotate: %w", err)
		}
		res.Rotated = &next
	}
	return res, nil
}

// Encode serializes a token for the cookie.
func Encode(t Token) (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a cookie value produced by [Encode].
func Decode(s string) (Token, error) {
	var t Token
	if s == "" {
		return t, errors.New("empty csrf cookie")
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return t, err
	}
	if t.Value == "" || t.Fingerprint == "" || t.IntegrityHash == "" || t.Timestamp <= 0 {
		return Token{}, errors.New("incomplete csrf token")
	}
	return t, nil
}

// Protected reports whether method is state-changing.
func Protected(method string) bool {
	switch strings.ToUpper(method) {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	default:
		return false
	}
}

// Excluded reports whether path starts with any of the excluded prefixes.
func Excluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
