package main

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GOGUARD_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("GOGUARD_MASTER_SECRET", "master-secret-master-secret-0123456789")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.TrustProxy {
		t.Fatal("proxy headers must not be trusted by default")
	}
	if cfg.Addr != ":8080" || !cfg.MetricsEnabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfigTrustProxy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GOGUARD_TRUST_PROXY", "true")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.TrustProxy {
		t.Fatal("expected TrustProxy from environment")
	}
}

func TestLoadConfigIdentityNeedsSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDENTITY_ISSUER", "idp.example")

	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without IDENTITY_SECRET")
	}
}
