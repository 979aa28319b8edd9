package goGuard

// SecurityReport summarises the security-relevant settings of a built
// engine. It contains no secrets and is safe to log at startup.
//
//	Docs: docs/security.md
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	return SecurityReport{
		ProductionMode:     cfg.Security.ProductionMode,
		SigningAlgorithm:   cfg.JWT.SigningMethod,
		ValidationMode:     cfg.ValidationMode,
		AccessTTL:          cfg.JWT.AccessTTL,
		RefreshTTL:         cfg.JWT.RefreshTTL,
		FamilyLifetime:     cfg.Refresh.FamilyLifetime,
		SessionIdleTimeout: cfg.Session.IdleTimeout,
		MaxSessionsPerUser: cfg.Session.MaxSessionsPerUser,
		MaxTrustedDevices:  cfg.Device.MaxTrustedDevices,
		CSRFEnabled:        e.csrf != nil,
		CSRFMaxAge:         cfg.CSRF.MaxAge,
		RateLimitingActive: cfg.RateLimit.Enabled,
		DistributedLimits:  cfg.RateLimit.Enabled && e.memoryLimiter == nil,
		AuditEnabled:       e.audit != nil,
		DeviceStoreBackend: e.deviceBackend,
		SecureCookies:      cfg.Security.RequireSecureCookies,
		KeyRotationEnabled: cfg.JWT.KeyID != "" && len(cfg.JWT.VerifyKeys) > 0,
		FailureDetection:   cfg.Threat.Enabled,
	}
}
