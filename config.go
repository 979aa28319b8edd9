package goGuard

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal/rate"
)

// Config defines a public type used by goGuard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT            JWTConfig
	Refresh        RefreshConfig
	Session        SessionConfig
	Device         DeviceConfig
	CSRF           CSRFConfig
	RateLimit      RateLimitConfig
	Threat         ThreatConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Security       SecurityConfig
	Store          StoreConfig
	ValidationMode ValidationMode
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig defines a public type used by goGuard APIs.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default), "ed25519" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token families.
type RefreshConfig struct {
	RedisPrefix string
	// FamilyLifetime is the absolute lifetime of a family. Rotation never
	// extends a family past it.
	FamilyLifetime time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goGuard APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix        string
	Lifetime           time.Duration
	IdleTimeout        time.Duration
	MaxSessionsPerUser int
	// EndedRetention is how long ended sessions remain listable.
	EndedRetention     time.Duration
	DefaultPermissions []string

	SuspiciousWindow      time.Duration
	SuspiciousIPThreshold int
	SuspiciousRecentIPs   int
	SuspiciousDeviceTypes int
}

// DeviceConfig controls device tracking.
type DeviceConfig struct {
	RedisPrefix       string
	MaxTrustedDevices int
}

// CSRFConfig controls double-submit CSRF protection.
type CSRFConfig struct {
	Enabled       bool
	MaxAge        time.Duration
	RotateAfter   time.Duration
	ExcludedPaths []string
}

// RateLimitConfig holds one token-bucket rule per route class.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	// Distributed selects the Redis bucket. The in-memory bucket only limits
	// a single process.
	Distributed bool
	Login       rate.Rule
	Refresh     rate.Rule
	Session     rate.Rule
	CSRF        rate.Rule
}

// ThreatConfig tunes failure-velocity detection. Failed refreshes, CSRF
// checks, logins and rate limit denials are counted per client IP and per
// user against Failures. An empty bucket raises suspicious_activity, at most
// once per Failures.Window for each key. Counters share the rate limiter
// backend.
type ThreatConfig struct {
	Enabled  bool
	Failures rate.Rule
}

// AuditConfig defines a public type used by goGuard APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goGuard APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by goGuard APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	ProductionMode bool
	// MasterSecret seeds the derived CSRF integrity and fingerprint keys.
	MasterSecret         []byte
	RequireSecureCookies bool
	SameSitePolicy       http.SameSite
	CookieDomain         string
	CookiePath           string
}

// StoreConfig bounds every store call made by the engine.
type StoreConfig struct {
	OperationTimeout time.Duration
}

// ValidationMode selects how much an access token check verifies.
type ValidationMode int

const (
	// ModeInherit uses the engine's configured mode.
	ModeInherit ValidationMode = -1

	// ModeJWTOnly checks signature, expiry and type only.
	ModeJWTOnly ValidationMode = iota
	// ModeStrict also requires the token's session to be active.
	ModeStrict
)

// RouteMode is the per-route override mode for Engine.Authenticate.
type RouteMode = ValidationMode

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "goguard",
			Audience:      "goguard-clients",
			RequireIAT:    true,
		},
		Refresh: RefreshConfig{
			RedisPrefix:    "gg",
			FamilyLifetime: 30 * 24 * time.Hour,
		},
		Session: SessionConfig{
			RedisPrefix:           "gg",
			Lifetime:              7 * 24 * time.Hour,
			IdleTimeout:           8 * time.Hour,
			MaxSessionsPerUser:    5,
			EndedRetention:        24 * time.Hour,
			DefaultPermissions:    []string{"user"},
			SuspiciousWindow:      time.Hour,
			SuspiciousIPThreshold: 3,
			SuspiciousRecentIPs:   2,
			SuspiciousDeviceTypes: 1,
		},
		Device: DeviceConfig{
			RedisPrefix:       "gg",
			MaxTrustedDevices: 10,
		},
		CSRF: CSRFConfig{
			Enabled:       true,
			MaxAge:        time.Hour,
			RotateAfter:   30 * time.Minute,
			ExcludedPaths: []string{"/auth/login", "/auth/callback", "/auth/logout"},
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: "gg",
			Distributed: true,
			Login:       rate.Rule{Name: "login", MaxTokens: 5, RefillRate: 5, Window: 15 * time.Minute},
			Refresh:     rate.Rule{Name: "refresh", MaxTokens: 10, RefillRate: 10, Window: time.Minute},
			Session:     rate.Rule{Name: "session", MaxTokens: 30, RefillRate: 30, Window: time.Minute},
			CSRF:        rate.Rule{Name: "csrf", MaxTokens: 10, RefillRate: 1, Window: time.Minute},
		},
		Threat: ThreatConfig{
			Enabled:  true,
			Failures: rate.Rule{Name: "failures", MaxTokens: 5, RefillRate: 5, Window: 5 * time.Minute},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:       false,
			RequireSecureCookies: true,
			SameSitePolicy:       http.SameSiteStrictMode,
			CookiePath:           "/",
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
		},
		ValidationMode: ModeJWTOnly,
	}
}

// DefaultConfig returns the baseline configuration. Callers must still set
// JWT keys and Security.MasterSecret.
func DefaultConfig() Config {
	return defaultConfig()
}

// HighSecurityConfig returns a configuration with shorter token lifetimes,
// strict session validation and production cookies.
func HighSecurityConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessTTL = 5 * time.Minute
	cfg.JWT.RefreshTTL = 24 * time.Hour
	cfg.JWT.SigningMethod = "ed25519"
	cfg.Refresh.FamilyLifetime = 7 * 24 * time.Hour
	cfg.Session.Lifetime = 7 * 24 * time.Hour
	cfg.Session.IdleTimeout = 2 * time.Hour
	cfg.Session.MaxSessionsPerUser = 3
	cfg.Security.ProductionMode = true
	cfg.Audit.DropIfFull = false
	cfg.ValidationMode = ModeStrict
	return cfg
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Security.MasterSecret = cloneBytes(cfg.Security.MasterSecret)
	out.Session.DefaultPermissions = append([]string(nil), cfg.Session.DefaultPermissions...)
	out.CSRF.ExcludedPaths = append([]string(nil), cfg.CSRF.ExcludedPaths...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
//
// Validate does not mutate the receiver.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" || strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Issuer and Audience are required")
	}

	// Refresh
	if c.Refresh.RedisPrefix == "" {
		return errors.New("Refresh RedisPrefix must not be empty")
	}
	if c.Refresh.FamilyLifetime < c.JWT.RefreshTTL {
		return errors.New("Refresh FamilyLifetime must be >= JWT RefreshTTL")
	}

	// Session
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session Lifetime must be > 0")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.MaxSessionsPerUser < 0 {
		return errors.New("Session MaxSessionsPerUser must be >= 0")
	}
	if c.Session.EndedRetention < 0 {
		return errors.New("Session EndedRetention must be >= 0")
	}
	if c.Session.SuspiciousWindow <= 0 {
		return errors.New("Session SuspiciousWindow must be > 0")
	}

	// Device
	if c.Device.RedisPrefix == "" {
		return errors.New("Device RedisPrefix must not be empty")
	}
	if c.Device.MaxTrustedDevices < 0 {
		return errors.New("Device MaxTrustedDevices must be >= 0")
	}

	// CSRF
	if c.CSRF.Enabled {
		if c.CSRF.MaxAge <= 0 {
			return errors.New("CSRF MaxAge must be > 0")
		}
		if c.CSRF.RotateAfter < 0 || c.CSRF.RotateAfter > c.CSRF.MaxAge {
			return errors.New("CSRF RotateAfter must be between 0 and MaxAge")
		}
	}
	if len(c.Security.MasterSecret) < 32 {
		return errors.New("Security MasterSecret must be at least 32 bytes")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.Distributed && c.RateLimit.RedisPrefix == "" {
			return errors.New("RateLimit RedisPrefix must not be empty")
		}
		for _, rule := range []rate.Rule{c.RateLimit.Login, c.RateLimit.Refresh, c.RateLimit.Session, c.RateLimit.CSRF} {
			if err := rule.Validate(); err != nil {
				return err
			}
		}
	}

	if c.Threat.Enabled {
		if err := c.Threat.Failures.Validate(); err != nil {
			return err
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Security
	if c.Security.ProductionMode && !c.Security.RequireSecureCookies {
		return errors.New("ProductionMode requires RequireSecureCookies")
	}
	if c.Security.SameSitePolicy == http.SameSiteNoneMode && !c.Security.RequireSecureCookies {
		return errors.New("SameSite=None requires RequireSecureCookies")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return errors.New("Store OperationTimeout must be > 0")
	}

	switch c.ValidationMode {
	case ModeJWTOnly, ModeStrict:
	default:
		return errors.New("invalid ValidationMode")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is an advisory finding on a valid configuration.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the list of warnings returned by Lint.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, len(r))
	for i, w := range r {
		out[i] = w.Code
	}
	return out
}

// Lint reports settings that are legal but weaken the deployment.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > time.Minute {
		add("leeway_large", "JWT leeway above 1m widens the replay window of expired tokens")
	}
	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", "access tokens live longer than 15m and cannot be revoked")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.JWT.SigningMethod == "hs256" && c.Security.ProductionMode {
		add("hs256_production", "hs256 shares the signing key with every verifier")
	}
	if !c.RateLimit.Enabled {
		add("rate_limits_disabled", "auth endpoints are not rate limited")
	} else if !c.RateLimit.Distributed {
		add("rate_limits_local", "in-memory rate limits are per process")
	}
	if c.Session.Lifetime < c.JWT.RefreshTTL {
		add("session_shorter_than_refresh", "sessions end before their refresh tokens expire")
	}
	if c.Session.IdleTimeout == 0 {
		add("idle_timeout_disabled", "idle sessions never expire")
	}
	if !c.CSRF.Enabled {
		add("csrf_disabled", "cookie-authenticated endpoints are not CSRF protected")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "security events are not emitted")
	}
	if !c.Threat.Enabled {
		add("failure_detection_disabled", "repeated failures from one IP or user raise no alert")
	}
	if !c.Security.ProductionMode {
		add("production_mode_off", "ProductionMode is off")
	}
	return ws
}
