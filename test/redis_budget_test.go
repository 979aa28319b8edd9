//go:build integration
// +build integration

package test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook counting commands and pipeline round trips.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		h.commands.Add(int64(len(cmds)))
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

func (h *cmdCounter) Commands() int64  { return h.commands.Load() }
func (h *cmdCounter) Pipelines() int64 { return h.pipelines.Load() }

func newCountedEngine(t *testing.T) (*goGuard.Engine, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}

	engine := buildEngine(t, rdb, nil, nil)
	counter.Reset()
	return engine, counter
}

func TestVerifyAccessUsesNoRedis(t *testing.T) {
	engine, counter := newCountedEngine(t)
	login := mustLogin(t, engine, "u1")

	counter.Reset()
	for i := 0; i < 10; i++ {
		if _, err := engine.VerifyAccess(login.Tokens.AccessToken); err != nil {
			t.Fatalf("verify: %v", err)
		}
		if _, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken, goGuard.ModeJWTOnly); err != nil {
			t.Fatalf("authenticate: %v", err)
		}
	}
	if cmds := counter.Commands(); cmds != 0 {
		t.Fatalf("jwt-only validation used %d Redis commands; budget is 0", cmds)
	}
}

func TestStrictAuthenticateRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	login := mustLogin(t, engine, "u1")

	counter.Reset()
	if _, err := engine.Authenticate(context.Background(), login.Tokens.AccessToken, goGuard.ModeStrict); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("strict validation used %d Redis commands; budget is 1 (HGETALL)", cmds)
	}
}

func TestAdmitRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()

	// The first call may load the script (EVALSHA then EVAL).
	if _, err := engine.Admit(ctx, goGuard.RouteSession, "203.0.113.10"); err != nil {
		t.Fatalf("admit: %v", err)
	}

	counter.Reset()
	if _, err := engine.Admit(ctx, goGuard.RouteSession, "203.0.113.10"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if cmds := counter.Commands(); cmds != 1 {
		t.Fatalf("Admit used %d Redis commands; budget is 1 (EVALSHA)", cmds)
	}
}

func TestRotateRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	ctx := context.Background()
	login := mustLogin(t, engine, "u1")

	pair, err := engine.Rotate(ctx, login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("warmup rotate: %v", err)
	}

	counter.Reset()
	if _, err := engine.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if cmds := counter.Commands(); cmds > 4 {
		t.Fatalf("Rotate used %d Redis commands; budget is 4", cmds)
	}
	t.Logf("Rotate: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}

func TestLoginRedisBudget(t *testing.T) {
	engine, counter := newCountedEngine(t)
	_ = mustLogin(t, engine, "warm")

	counter.Reset()
	_ = mustLogin(t, engine, "u1")
	if cmds := counter.Commands(); cmds > 40 {
		t.Errorf("Login used %d Redis commands; budget is 40", cmds)
	}
	t.Logf("Login: %d commands, %d pipelines", counter.Commands(), counter.Pipelines())
}
