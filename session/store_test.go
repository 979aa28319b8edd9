package session

import (
	"context"
	"errors"
	"sync"
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

func newSessionStoreTest(t *testing.T) (*Store, *testClock, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	store := NewStore(rdb, "gg", time.Hour, clock.Now)
	return store, clock, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(id string, clock *testClock) *Session {
	now := clock.Now()
	return &Session{
		SessionID:      id,
		UserID:         "u-1",
		DeviceID:       "dev-1",
		Permissions:    []string{"user", "billing:read"},
		Version:        1,
		IP:             "10.0.0.1",
		UserAgent:      "Mozilla/5.0",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(24 * time.Hour),
		Active:         true,
	}
}

func TestSaveGetRoundTrip(t *testing.T) {
	store, clock, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	want := testSession("sid-1", clock)
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != want.UserID || got.DeviceID != want.DeviceID || !got.Active || got.Version != 1 {
		t.Fatalf("unexpected session %+v", got)
	}
	if len(got.Permissions) != 2 || got.Permissions[0] != "user" || got.Permissions[1] != "billing:read" {
		t.Fatalf("permissions not preserved in order: %v", got.Permissions)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Fatalf("timestamps not preserved: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) || !errors.Is(err, redis.Nil) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeactivateIdempotentReturnsFamily(t *testing.T) {
	store, clock, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1", clock)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if status, err := store.LinkFamily(ctx, "sid-1", "fam_1"); err != nil || status != LinkOK {
		t.Fatalf("link family: %v err=%v", status, err)
	}

	first, err := store.Deactivate(ctx, "sid-1", "logout")
	if err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	if !first.Found || !first.Changed || first.FamilyID != "fam_1" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := store.Deactivate(ctx, "sid-1", "admin")
	if err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if !second.Found || second.Changed || second.FamilyID != "fam_1" {
		t.Fatalf("unexpected second result %+v", second)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active || got.EndReason != "logout" || got.EndedAt.IsZero() {
		t.Fatalf("expected ended session with first reason, got %+v", got)
	}

	missing, err := store.Deactivate(ctx, "missing", "logout")
	if err != nil || missing.Found {
		t.Fatalf("expected missing session no-op, got %+v err=%v", missing, err)
	}
}

func TestLinkFamilyRejectsInactive(t *testing.T) {
	store, clock, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1", clock)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Deactivate(ctx, "sid-1", "logout"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if status, err := store.LinkFamily(ctx, "sid-1", "fam_2"); err != nil || status != LinkInactive {
		t.Fatalf("expected inactive, got %v err=%v", status, err)
	}
	if status, err := store.LinkFamily(ctx, "missing", "fam_2"); err != nil || status != LinkNotFound {
		t.Fatalf("expected not found, got %v err=%v", status, err)
	}
}

func TestTouchNeverReactivatesAndDetectsIdle(t *testing.T) {
	store, clock, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1", clock)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(ctx, testSession("sid-2", clock)); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(time.Hour)
	if status, err := store.Touch(ctx, "sid-1", "10.0.0.9", 8*time.Hour); err != nil || status != TouchOK {
		t.Fatalf("expected touch ok, got %v err=%v", status, err)
	}
	got, _ := store.Get(ctx, "sid-1")
	if got.IP != "10.0.0.9" || !got.LastActivityAt.Equal(clock.Now()) {
		t.Fatalf("expected touched session, got %+v", got)
	}

	clock.Advance(9 * time.Hour)
	if status, err := store.Touch(ctx, "sid-2", "", 8*time.Hour); err != nil || status != TouchExpired {
		t.Fatalf("expected idle session to be expired, got %v err=%v", status, err)
	}

	if _, err := store.Deactivate(ctx, "sid-1", "logout"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if status, err := store.Touch(ctx, "sid-1", "", 8*time.Hour); err != nil || status != TouchInactive {
		t.Fatalf("expected inactive, got %v err=%v", status, err)
	}
	got, _ = store.Get(ctx, "sid-1")
	if got.Active {
		t.Fatal("touch reactivated an ended session")
	}
}

func TestListForUserOrderedAndPruned(t *testing.T) {
	store, clock, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	for _, id := range []string{"sid-a", "sid-b", "sid-c"} {
		if err := store.Save(ctx, testSession(id, clock)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
		clock.Advance(time.Minute)
	}
	if err := store.redis.Del(ctx, store.key("sid-b")).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}

	list, err := store.ListForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "sid-a" || list[1].SessionID != "sid-c" {
		t.Fatalf("unexpected listing %+v", list)
	}
	n, err := store.redis.ZCard(ctx, store.userKey("u-1")).Result()
	if err != nil || n != 2 {
		t.Fatalf("expected stale index entry pruned, got %d err=%v", n, err)
	}
}

func TestNextVersionMonotonic(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		v, err := store.NextVersion(ctx, "u-1")
		if err != nil {
			t.Fatalf("next version: %v", err)
		}
		if v <= last {
			t.Fatalf("version did not increase: %d after %d", v, last)
		}
		last = v
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := &Session{LastActivityAt: now, ExpiresAt: now.Add(time.Hour)}
	if s.Expired(now, time.Minute) {
		t.Fatal("fresh session reported expired")
	}
	if !s.Expired(now.Add(2*time.Minute), time.Minute) {
		t.Fatal("idle session not reported expired")
	}
	if s.Expired(now.Add(2*time.Minute), 0) {
		t.Fatal("zero idle should disable idle check")
	}
	if !s.Expired(now.Add(time.Hour), 0) {
		t.Fatal("session at absolute expiry not reported expired")
	}
}
