//go:build integration
// +build integration

package test

import (
	"context"
	"sync"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func integrationConfig() goGuard.Config {
	cfg := goGuard.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("integration-signing-key-0123456789abcdef")
	cfg.Security.MasterSecret = []byte("integration-master-secret-0123456789abcdef")
	cfg.Security.RequireSecureCookies = false
	cfg.Audit.Enabled = false
	return cfg
}

func buildEngine(t *testing.T, rdb redis.UniversalClient, clock *fakeClock, mutate func(*goGuard.Config)) *goGuard.Engine {
	t.Helper()

	cfg := integrationConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	b := goGuard.New().WithConfig(cfg).WithRedis(rdb)
	if clock != nil {
		b = b.WithClock(clock.Now)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newIntegrationEngine(t *testing.T, mutate func(*goGuard.Config)) (*goGuard.Engine, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return buildEngine(t, rdb, clock, mutate), mr, clock
}

var browser = goGuard.RequestContext{
	IP:             "203.0.113.10",
	UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) Safari/605.1.15",
	AcceptLanguage: "en-GB",
	AcceptEncoding: "gzip, br",
}

func mustLogin(t *testing.T, engine *goGuard.Engine, userID string) *goGuard.LoginResult {
	t.Helper()
	res, err := engine.Login(context.Background(), goGuard.Identity{UserID: userID, Provider: "idp.example"}, browser)
	if err != nil {
		t.Fatalf("login %s failed: %v", userID, err)
	}
	return res
}
