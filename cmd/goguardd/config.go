package main

import (
	"errors"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/caarlos0/env/v11"
)

type serverConfig struct {
	Addr            string        `env:"GOGUARD_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"GOGUARD_REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"GOGUARD_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	SweepInterval   time.Duration `env:"GOGUARD_SWEEP_INTERVAL" envDefault:"1m"`
	LogLevel        string        `env:"GOGUARD_LOG_LEVEL" envDefault:"info"`
	Production      bool          `env:"GOGUARD_PRODUCTION" envDefault:"false"`
	StrictSessions  bool          `env:"GOGUARD_STRICT_SESSIONS" envDefault:"false"`
	MetricsEnabled  bool          `env:"GOGUARD_METRICS_ENABLED" envDefault:"true"`

	// TrustProxy honours X-Forwarded-For and X-Real-IP. Leave it off unless
	// a proxy in front of the server overwrites them.
	TrustProxy bool `env:"GOGUARD_TRUST_PROXY" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// DatabaseURL switches device records to Postgres when set.
	DatabaseURL string `env:"DATABASE_URL"`

	JWTSecret    string        `env:"GOGUARD_JWT_SECRET,required,notEmpty"`
	MasterSecret string        `env:"GOGUARD_MASTER_SECRET,required,notEmpty"`
	AccessTTL    time.Duration `env:"GOGUARD_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL   time.Duration `env:"GOGUARD_REFRESH_TTL" envDefault:"168h"`
	Issuer       string        `env:"GOGUARD_ISSUER" envDefault:"goguard"`
	Audience     string        `env:"GOGUARD_AUDIENCE" envDefault:"goguard-clients"`
	CookieDomain string        `env:"GOGUARD_COOKIE_DOMAIN"`

	IdentityIssuer   string `env:"IDENTITY_ISSUER"`
	IdentityAudience string `env:"IDENTITY_AUDIENCE"`
	IdentitySecret   string `env:"IDENTITY_SECRET"`
}

func loadConfig() (serverConfig, error) {
	cfg, err := env.ParseAs[serverConfig]()
	if err != nil {
		return cfg, err
	}
	if cfg.IdentityIssuer != "" && cfg.IdentitySecret == "" {
		return cfg, errors.New("IDENTITY_SECRET is required when IDENTITY_ISSUER is set")
	}
	return cfg, nil
}

// engineConfig maps the environment onto an engine configuration.
func (c serverConfig) engineConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()
	if c.Production {
		cfg = goGuard.HighSecurityConfig()
		cfg.JWT.SigningMethod = "hs256"
	}
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	cfg.JWT.Issuer = c.Issuer
	cfg.JWT.Audience = c.Audience
	cfg.Security.MasterSecret = []byte(c.MasterSecret)
	cfg.Security.ProductionMode = c.Production
	cfg.Security.RequireSecureCookies = c.Production
	cfg.Security.CookieDomain = c.CookieDomain
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.MetricsEnabled
	if c.StrictSessions {
		cfg.ValidationMode = goGuard.ModeStrict
	}
	return cfg
}
