package goGuard

import (
	"io"
	"time"

	"github.com/MrEthical07/goGuard/device"
	internalaudit "github.com/MrEthical07/goGuard/internal/audit"
	internalmetrics "github.com/MrEthical07/goGuard/internal/metrics"
	"github.com/MrEthical07/goGuard/session"
	"github.com/rs/zerolog"
)

// TokenPair is returned by [Engine.Issue] and [Engine.Rotate]. ExpiresIn
// and RefreshExpiresIn are in seconds.
//
//	Docs: docs/tokens.md
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	RefreshExpiresIn int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	FamilyID         string
	SessionID        string
}

// AccessResult is returned by [Engine.VerifyAccess] and [Engine.Authenticate].
type AccessResult struct {
	UserID      string
	SessionID   string
	TokenID     string
	Permissions []string
	ExpiresAt   time.Time
	// ShouldRefresh is set in the last fifth of the token lifetime.
	ShouldRefresh bool
}

// ValidationResult reports the outcome of a token check without returning
// an error. Err holds the matching sentinel when Valid is false.
type ValidationResult struct {
	Valid         bool
	Reason        string
	Err           error
	UserID        string
	SessionID     string
	FamilyID      string
	TokenID       string
	Permissions   []string
	ExpiresAt     time.Time
	ShouldRefresh bool
}

// RefreshValidationOptions controls [Engine.ValidateRefreshToken].
type RefreshValidationOptions struct {
	// CheckFamily consults the refresh store for family revocation.
	CheckFamily bool
}

// RequestContext carries the request attributes used for fingerprinting,
// device classification and security events.
type RequestContext struct {
	IP             string
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	AcceptCharset  string
}

// SessionValidation is returned by [Engine.ValidateSession].
type SessionValidation struct {
	Valid   bool
	Reason  string
	Session *session.Session
}

// SuspicionReport summarises a user's concurrent session footprint.
type SuspicionReport struct {
	Suspicious     bool
	Reasons        []string
	ActiveSessions int
	DistinctIPs    int
	RecentIPs      int
	DeviceTypes    int
}

// Identity is an authenticated principal asserted by an identity provider.
type Identity struct {
	UserID      string
	Email       string
	Permissions []string
	Provider    string
}

// LoginResult bundles everything created by [Engine.Login].
type LoginResult struct {
	Session   *session.Session
	Device    *device.Device
	NewDevice bool
	Tokens    *TokenPair
}

// SecurityReport describes the security posture of a built engine.
type SecurityReport struct {
	ProductionMode     bool
	SigningAlgorithm   string
	ValidationMode     ValidationMode
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	FamilyLifetime     time.Duration
	SessionIdleTimeout time.Duration
	MaxSessionsPerUser int
	MaxTrustedDevices  int
	CSRFEnabled        bool
	CSRFMaxAge         time.Duration
	RateLimitingActive bool
	DistributedLimits  bool
	AuditEnabled       bool
	DeviceStoreBackend string
	SecureCookies      bool
	KeyRotationEnabled bool
	FailureDetection   bool
}

type SecurityEvent = internalaudit.Event

type SecuritySink = internalaudit.Sink

type Severity = internalaudit.Severity

const (
	SeverityLow      = internalaudit.SeverityLow
	SeverityMedium   = internalaudit.SeverityMedium
	SeverityHigh     = internalaudit.SeverityHigh
	SeverityCritical = internalaudit.SeverityCritical
)

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type ZerologSink = internalaudit.ZerologSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(logger)
}

type MetricID = internalmetrics.MetricID

const (
	MetricIssueSuccess         = internalmetrics.MetricIssueSuccess
	MetricIssueFailure         = internalmetrics.MetricIssueFailure
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricRefreshReuseDetected = internalmetrics.MetricRefreshReuseDetected
	MetricFamilyRevoked        = internalmetrics.MetricFamilyRevoked
	MetricFamilyExpired        = internalmetrics.MetricFamilyExpired
	MetricStoreUnavailable     = internalmetrics.MetricStoreUnavailable
	MetricRateLimitHit         = internalmetrics.MetricRateLimitHit
	MetricSessionCreated       = internalmetrics.MetricSessionCreated
	MetricSessionInvalidated   = internalmetrics.MetricSessionInvalidated
	MetricSessionEvicted       = internalmetrics.MetricSessionEvicted
	MetricSessionExpired       = internalmetrics.MetricSessionExpired
	MetricLoginSuccess         = internalmetrics.MetricLoginSuccess
	MetricLoginFailure         = internalmetrics.MetricLoginFailure
	MetricLogout               = internalmetrics.MetricLogout
	MetricLogoutAll            = internalmetrics.MetricLogoutAll
	MetricDeviceRegistered     = internalmetrics.MetricDeviceRegistered
	MetricDeviceTrusted        = internalmetrics.MetricDeviceTrusted
	MetricCSRFIssued           = internalmetrics.MetricCSRFIssued
	MetricCSRFFailure          = internalmetrics.MetricCSRFFailure
	MetricCSRFRotated          = internalmetrics.MetricCSRFRotated
	MetricSuspiciousActivity   = internalmetrics.MetricSuspiciousActivity
	MetricValidateLatency      = internalmetrics.MetricValidateLatency
	MetricRotateLatency        = internalmetrics.MetricRotateLatency
)

type Metrics = internalmetrics.Metrics

type MetricsSnapshot = internalmetrics.Snapshot

func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
