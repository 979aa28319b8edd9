package device

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func newRedisManagerTest(t *testing.T, maxTrusted int) (*Manager, *time.Time, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	now := time.Unix(1_700_000_000, 0)
	mgr, err := NewManager(NewRedisStore(rdb, "gg"), []byte("fingerprint-key"), maxTrusted, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr, &now, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestParseUserAgent(t *testing.T) {
	cases := []struct {
		ua      string
		typ     Type
		os      string
		browser string
	}{
		{chromeMac, TypeDesktop, "macOS", "Chrome"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36 Edg/120.0", TypeDesktop, "Windows", "Edge"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1", TypeMobile, "iOS", "Safari"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1", TypeTablet, "iOS", "Safari"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36", TypeMobile, "Android", "Chrome"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0", TypeDesktop, "Linux", "Firefox"},
		{"Mozilla/5.0 (PlayStation 5 3.11) AppleWebKit/605.1.15", TypeGameConsole, "Unknown", "Unknown"},
		{"", TypeUnknown, "Unknown", "Unknown"},
	}
	for _, tc := range cases {
		info := ParseUserAgent(tc.ua)
		if info.Type != tc.typ || info.OS != tc.os || info.Browser != tc.browser {
			t.Fatalf("ua %q: got %+v, want %s/%s/%s", tc.ua, info, tc.typ, tc.os, tc.browser)
		}
	}
	if got := ParseUserAgent(chromeMac).Name(); got != "Chrome on macOS" {
		t.Fatalf("unexpected device name %q", got)
	}
}

func TestFingerprintIgnoresIPAndKeyBound(t *testing.T) {
	sig := Signals{UserAgent: chromeMac, AcceptLanguage: "en-US", AcceptEncoding: "gzip", IP: "10.0.0.1"}
	moved := sig
	moved.IP = "192.168.1.1"
	if Fingerprint([]byte("k"), sig) != Fingerprint([]byte("k"), moved) {
		t.Fatal("fingerprint must not depend on client ip")
	}
	if Fingerprint([]byte("k"), sig) == Fingerprint([]byte("other"), sig) {
		t.Fatal("fingerprint must depend on key")
	}
	other := sig
	other.AcceptLanguage = "de-DE"
	if Fingerprint([]byte("k"), sig) == Fingerprint([]byte("k"), other) {
		t.Fatal("fingerprint must depend on language")
	}
}

func TestRegisterReusesKnownFingerprint(t *testing.T) {
	mgr, now, done := newRedisManagerTest(t, 10)
	defer done()
	ctx := context.Background()
	sig := Signals{UserAgent: chromeMac, AcceptLanguage: "en-US", IP: "10.0.0.1"}

	first, created, err := mgr.Register(ctx, "u-1", sig)
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	if first.Trusted || !first.Active || first.Name != "Chrome on macOS" {
		t.Fatalf("unexpected new device %+v", first)
	}

	if _, err := mgr.Deactivate(ctx, "u-1", first.DeviceID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	*now = now.Add(time.Hour)
	sig.IP = "10.0.0.2"
	second, created, err := mgr.Register(ctx, "u-1", sig)
	if err != nil || created {
		t.Fatalf("second register: created=%v err=%v", created, err)
	}
	if second.DeviceID != first.DeviceID || !second.Active || second.LastIP != "10.0.0.2" || !second.LastSeen.Equal(*now) {
		t.Fatalf("expected reactivated device, got %+v", second)
	}

	list, err := mgr.List(ctx, "u-1", true)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one device, got %d err=%v", len(list), err)
	}
}

func TestRegisterConcurrentSameFingerprint(t *testing.T) {
	mgr, _, done := newRedisManagerTest(t, 10)
	defer done()
	ctx := context.Background()
	sig := Signals{UserAgent: chromeMac}

	const workers = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		created int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, ok, err := mgr.Register(ctx, "u-1", sig)
			if err != nil {
				t.Errorf("register: %v", err)
				return
			}
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if created != 1 {
		t.Fatalf("expected a single created device, got %d", created)
	}
}

func TestTrustCapAndOwnership(t *testing.T) {
	mgr, _, done := newRedisManagerTest(t, 2)
	defer done()
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		d, _, err := mgr.Register(ctx, "u-1", Signals{UserAgent: chromeMac + " build/" + strconv.Itoa(i)})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		ids = append(ids, d.DeviceID)
	}

	for _, id := range ids[:2] {
		if _, err := mgr.Trust(ctx, "u-1", id); err != nil {
			t.Fatalf("trust: %v", err)
		}
	}
	if _, err := mgr.Trust(ctx, "u-1", ids[0]); err != nil {
		t.Fatalf("re-trust should be a no-op: %v", err)
	}
	if _, err := mgr.Trust(ctx, "u-1", ids[2]); !errors.Is(err, ErrTrustedDeviceLimit) {
		t.Fatalf("expected trusted device limit, got %v", err)
	}
	if _, err := mgr.Trust(ctx, "u-2", ids[2]); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected foreign device to be not found, got %v", err)
	}

	if _, err := mgr.Deactivate(ctx, "u-1", ids[0]); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := mgr.Trust(ctx, "u-1", ids[2]); err != nil {
		t.Fatalf("expected trust after freeing a slot: %v", err)
	}

	active, err := mgr.List(ctx, "u-1", false)
	if err != nil || len(active) != 2 {
		t.Fatalf("expected 2 active devices, got %d err=%v", len(active), err)
	}
}

func TestTrustCapHoldsUnderConcurrency(t *testing.T) {
	mgr, _, done := newRedisManagerTest(t, 2)
	defer done()
	ctx := context.Background()

	const devices = 8
	ids := make([]string, 0, devices)
	for i := 0; i < devices; i++ {
		d, _, err := mgr.Register(ctx, "u-1", Signals{UserAgent: chromeMac + " build/" + strconv.Itoa(i)})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		ids = append(ids, d.DeviceID)
	}

	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		mu      sync.Mutex
		trusted int
		capped  int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := mgr.Trust(ctx, "u-1", id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				trusted++
			case errors.Is(err, ErrTrustedDeviceLimit):
				capped++
			default:
				t.Errorf("trust: %v", err)
			}
		}(id)
	}
	close(start)
	wg.Wait()

	if trusted != 2 || capped != devices-2 {
		t.Fatalf("expected 2 trusted and %d capped, got %d and %d", devices-2, trusted, capped)
	}
	all, err := mgr.List(ctx, "u-1", true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	stored := 0
	for _, d := range all {
		if d.Trusted {
			stored++
		}
	}
	if stored != 2 {
		t.Fatalf("expected 2 stored trusted devices, got %d", stored)
	}
}

func TestPostgresStoreUpsert(t *testing.T) {
	dsn := os.Getenv("GOGUARD_DATABASE_URL")
	if dsn == "" {
		t.Skip("GOGUARD_DATABASE_URL is not set; skipping Postgres integration test")
	}
	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	defer pool.Close()

	userID := "pg-user-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM goguard_devices WHERE user_id = $1`, userID)
	})

	mgr, err := NewManager(NewPostgresStore(pool), []byte("fingerprint-key"), 10, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	first, created, err := mgr.Register(ctx, userID, Signals{UserAgent: chromeMac})
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}
	second, created, err := mgr.Register(ctx, userID, Signals{UserAgent: chromeMac, IP: "10.0.0.5"})
	if err != nil || created {
		t.Fatalf("second register: created=%v err=%v", created, err)
	}
	if second.DeviceID != first.DeviceID || second.LastIP != "10.0.0.5" {
		t.Fatalf("expected existing device refreshed, got %+v", second)
	}
	if _, err := mgr.Trust(ctx, userID, first.DeviceID); err != nil {
		t.Fatalf("trust: %v", err)
	}

	capped, err := NewManager(NewPostgresStore(pool), []byte("fingerprint-key"), 1, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	other, _, err := capped.Register(ctx, userID, Signals{UserAgent: chromeMac + " build/2"})
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	if _, err := capped.Trust(ctx, userID, other.DeviceID); !errors.Is(err, ErrTrustedDeviceLimit) {
		t.Fatalf("expected trusted device limit, got %v", err)
	}
	if _, err := capped.Trust(ctx, "someone-else", other.DeviceID); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected foreign device to be not found, got %v", err)
	}
}
