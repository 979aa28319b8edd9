package goGuard

import (
	"errors"
	"time"

	"github.com/MrEthical07/goGuard/csrf"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/flows"
	"github.com/MrEthical07/goGuard/internal/rate"
	"github.com/MrEthical07/goGuard/jwt"
	"github.com/MrEthical07/goGuard/refresh"
	"github.com/MrEthical07/goGuard/session"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goGuard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	deviceStore device.Store
	limiter     rate.Limiter
	auditSink   SecuritySink
	now         func() time.Time
	warn        func(string, ...any)

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing refresh families, sessions and, unless
// overridden, devices and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDeviceStore overrides the default Redis device store, for example with
// [device.NewPostgresStore].
func (b *Builder) WithDeviceStore(store device.Store) *Builder {
	b.deviceStore = store
	return b
}

// WithLimiter overrides the limiter selected by RateLimit.Distributed.
func (b *Builder) WithLimiter(l rate.Limiter) *Builder {
	b.limiter = l
	return b
}

// WithAuditSink sets the destination of security events.
func (b *Builder) WithAuditSink(sink SecuritySink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces time.Now for every time-dependent component. Intended
// for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithWarnFunc sets the hook receiving non-fatal diagnostics such as a failed
// best-effort revocation.
func (b *Builder) WithWarnFunc(warn func(string, ...any)) *Builder {
	b.warn = warn
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component. A builder
// can be used once.
//
// Build may return an error when validation fails or a key cannot be parsed.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config: cfg,
		now:    now,
		redis:  b.redis,
		warn:   b.warn,
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    cfg.JWT.RequireIAT,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.jwtManager = jm

	// -------- STORES --------
	engine.refreshStore = refresh.NewStore(b.redis, cfg.Refresh.RedisPrefix, now)
	engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.EndedRetention, now)

	deviceStore := b.deviceStore
	engine.deviceBackend = "custom"
	if deviceStore == nil {
		deviceStore = device.NewRedisStore(b.redis, cfg.Device.RedisPrefix)
		engine.deviceBackend = "redis"
	} else if _, ok := deviceStore.(*device.PostgresStore); ok {
		engine.deviceBackend = "postgres"
	}
	deviceKey, err := internal.DeriveKey(cfg.Security.MasterSecret, "device-fp")
	if err != nil {
		return nil, err
	}
	engine.devices, err = device.NewManager(deviceStore, deviceKey, cfg.Device.MaxTrustedDevices, now)
	if err != nil {
		return nil, err
	}

	// -------- CSRF --------
	csrfKey, err := internal.DeriveKey(cfg.Security.MasterSecret, "csrf")
	if err != nil {
		return nil, err
	}
	csrfFPKey, err := internal.DeriveKey(cfg.Security.MasterSecret, "csrf-fp")
	if err != nil {
		return nil, err
	}
	if cfg.CSRF.Enabled {
		engine.csrf, err = csrf.NewProtector(csrfKey, csrfFPKey, csrf.Config{
			MaxAge:      cfg.CSRF.MaxAge,
			RotateAfter: cfg.CSRF.RotateAfter,
		}, now)
		if err != nil {
			return nil, err
		}
	}

	// -------- RATE LIMITING --------
	switch {
	case b.limiter != nil:
		engine.limiter = b.limiter
	case cfg.RateLimit.Distributed:
		engine.limiter = rate.NewRedisBucket(b.redis, cfg.RateLimit.RedisPrefix, now)
	default:
		mem := rate.NewMemoryBucket(now)
		engine.limiter = mem
		engine.memoryLimiter = mem
	}

	// -------- EVENTS & METRICS --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- FLOWS --------
	engine.flows = flows.New(engine.buildFlowDeps())

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps() flows.Deps {
	timeout := e.config.Store.OperationTimeout
	return flows.Deps{
		Issue: flows.IssueDeps{
			NewFamilyID:      internal.NewFamilyID,
			NewTokenID:       uuid.NewString,
			SignAccess:       e.jwtManager.CreateAccess,
			SignRefresh:      e.jwtManager.CreateRefresh,
			Now:              e.now,
			RefreshTTL:       e.config.JWT.RefreshTTL,
			FamilyLifetime:   e.config.Refresh.FamilyLifetime,
			OperationTimeout: timeout,
			Store:            e.refreshStore,
		},
		Rotate: flows.RotateDeps{
			ParseRefresh:     e.jwtManager.ParseRefresh,
			SignAccess:       e.jwtManager.CreateAccess,
			SignRefresh:      e.jwtManager.CreateRefresh,
			NewTokenID:       uuid.NewString,
			Now:              e.now,
			RefreshTTL:       e.config.JWT.RefreshTTL,
			OperationTimeout: timeout,
			Store:            e.refreshStore,
			TouchSession:     e.touchForRotation,
			Warn:             e.warnf,
		},
		Validate: flows.ValidateDeps{
			ParseAccess:      e.jwtManager.ParseAccess,
			ParseRefresh:     e.jwtManager.ParseRefresh,
			IsFamilyRevoked:  e.refreshStore.IsFamilyRevoked,
			Now:              e.now,
			OperationTimeout: timeout,
		},
		Invalidate: flows.InvalidateDeps{
			Sessions:         e.sessionStore,
			Families:         e.refreshStore,
			OperationTimeout: timeout,
		},
	}
}
