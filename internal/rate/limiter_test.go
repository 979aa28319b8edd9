package rate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var boundaryRule = Rule{Name: "login", MaxTokens: 5, RefillRate: 5, Window: 60 * time.Second}

func limiterCases(t *testing.T) map[string]func(*testClock) (Limiter, func()) {
	t.Helper()
	return map[string]func(*testClock) (Limiter, func()){
		"memory": func(c *testClock) (Limiter, func()) {
			return NewMemoryBucket(c.Now), func() {}
		},
		"redis": func(c *testClock) (Limiter, func()) {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis start: %v", err)
			}
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return NewRedisBucket(rdb, "gg", c.Now), func() {
				rdb.Close()
				mr.Close()
			}
		},
	}
}

func TestBucketBoundary(t *testing.T) {
	for name, build := range limiterCases(t) {
		t.Run(name, func(t *testing.T) {
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			lim, done := build(clock)
			defer done()
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				d, err := lim.Admit(ctx, boundaryRule, "10.0.0.1")
				if err != nil {
					t.Fatalf("admit %d: %v", i, err)
				}
				if !d.Allowed {
					t.Fatalf("request %d denied, want allowed", i+1)
				}
				if d.Remaining != 4-i {
					t.Fatalf("request %d: remaining %d, want %d", i+1, d.Remaining, 4-i)
				}
			}

			d, err := lim.Admit(ctx, boundaryRule, "10.0.0.1")
			if err != nil {
				t.Fatalf("admit 6: %v", err)
			}
			if d.Allowed {
				t.Fatal("6th request allowed, want denied")
			}
			if d.RetryAfter <= 0 || d.RetryAfter > boundaryRule.Window {
				t.Fatalf("unexpected retry after %v", d.RetryAfter)
			}
			if !errors.Is(d.Err(), ErrRateLimited) {
				t.Fatalf("expected ErrRateLimited, got %v", d.Err())
			}

			other, err := lim.Admit(ctx, boundaryRule, "10.0.0.2")
			if err != nil || !other.Allowed {
				t.Fatalf("independent key should be admitted, got %+v err=%v", other, err)
			}

			clock.Advance(boundaryRule.Window)
			d, err = lim.Admit(ctx, boundaryRule, "10.0.0.1")
			if err != nil || !d.Allowed {
				t.Fatalf("expected admission after a full window, got %+v err=%v", d, err)
			}
			if d.Remaining != 4 {
				t.Fatalf("bucket should be full again, remaining %d", d.Remaining)
			}
		})
	}
}

func TestBucketPartialRefill(t *testing.T) {
	for name, build := range limiterCases(t) {
		t.Run(name, func(t *testing.T) {
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			lim, done := build(clock)
			defer done()
			ctx := context.Background()
			rule := Rule{Name: "refresh", MaxTokens: 2, RefillRate: 1, Window: time.Minute}

			for i := 0; i < 2; i++ {
				if d, _ := lim.Admit(ctx, rule, "s"); !d.Allowed {
					t.Fatalf("request %d denied", i+1)
				}
			}
			clock.Advance(30 * time.Second)
			if d, _ := lim.Admit(ctx, rule, "s"); d.Allowed {
				t.Fatal("half a token must not admit a request")
			}
			clock.Advance(30 * time.Second)
			if d, _ := lim.Admit(ctx, rule, "s"); !d.Allowed {
				t.Fatal("one refilled token must admit a request")
			}
		})
	}
}

func TestBucketConcurrentAdmission(t *testing.T) {
	for name, build := range limiterCases(t) {
		t.Run(name, func(t *testing.T) {
			clock := &testClock{now: time.Unix(1_700_000_000, 0)}
			lim, done := build(clock)
			defer done()
			ctx := context.Background()

			const workers = 32
			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				allowed atomic.Int64
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					d, err := lim.Admit(ctx, boundaryRule, "shared")
					if err != nil {
						t.Errorf("admit: %v", err)
						return
					}
					if d.Allowed {
						allowed.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			if allowed.Load() != int64(boundaryRule.MaxTokens) {
				t.Fatalf("expected exactly %d admissions, got %d", boundaryRule.MaxTokens, allowed.Load())
			}
		})
	}
}

func TestRedisBucketFailsClosed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	lim := NewRedisBucket(rdb, "gg", nil)
	mr.Close()

	d, err := lim.Admit(context.Background(), boundaryRule, "k")
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected redis unavailable, got %v", err)
	}
	if d.Allowed {
		t.Fatal("store failure must not admit")
	}
}

func TestMemoryBucketSweep(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	lim := NewMemoryBucket(clock.Now)
	ctx := context.Background()

	if _, err := lim.Admit(ctx, boundaryRule, "a"); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if n := lim.Sweep(); n != 0 {
		t.Fatalf("sweep removed a partially drained bucket: %d", n)
	}
	clock.Advance(boundaryRule.Window)
	if n := lim.Sweep(); n != 1 || lim.Len() != 0 {
		t.Fatalf("expected refilled bucket swept, removed=%d len=%d", n, lim.Len())
	}
}

func TestRuleValidate(t *testing.T) {
	bad := []Rule{
		{},
		{Name: "x", RefillRate: 1, Window: time.Second},
		{Name: "x", MaxTokens: 1, Window: time.Second},
		{Name: "x", MaxTokens: 1, RefillRate: 1},
	}
	for _, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("rule %+v: expected ErrInvalidRule, got %v", r, err)
		}
	}
	if err := boundaryRule.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
}
