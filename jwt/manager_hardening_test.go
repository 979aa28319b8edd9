package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func newHSManager(t *testing.T, now func() time.Time) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goguard",
		Audience:      "goguard-api",
		Now:           now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func validAccessClaims(typ string) AccessClaims {
	return AccessClaims{
		SID:     "s1",
		Type:    typ,
		Version: ClaimsVersion,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "goguard",
			Audience:  gjwt.ClaimStrings{"goguard-api"},
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
		},
	}
}

func TestAccessRoundTripKeepsPermissionOrder(t *testing.T) {
	m := newHSManager(t, nil)
	perms := []string{"user", "billing:read", "admin"}

	token, exp, err := m.CreateAccess("u1", "s1", "a1", perms)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiry, got %v", exp)
	}
	perms[0] = "mutated"

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "u1" || claims.SID != "s1" || claims.Version != ClaimsVersion {
		t.Fatalf("unexpected claims %+v", claims)
	}
	want := []string{"user", "billing:read", "admin"}
	if len(claims.Permissions) != len(want) {
		t.Fatalf("expected %v, got %v", want, claims.Permissions)
	}
	for i := range want {
		if claims.Permissions[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, claims.Permissions)
		}
	}
}

func TestRefreshRoundTrip(t *testing.T) {
	m := newHSManager(t, nil)
	token, err := m.CreateRefresh("u1", "s1", "fam_1", "tok-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.FamilyID != "fam_1" || claims.ID != "tok-1" || claims.SID != "s1" || claims.Subject != "u1" {
		t.Fatalf("unexpected refresh claims %+v", claims)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	m := newHSManager(t, nil)
	access, _, err := m.CreateAccess("u1", "s1", "a1", nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	refresh, err := m.CreateRefresh("u1", "s1", "fam_1", "tok-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected access token to be rejected as refresh, got %v", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected refresh token to be rejected as access, got %v", err)
	}
}

func TestParseRespectsConfiguredClock(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	m := newHSManager(t, clock)

	access, _, err := m.CreateAccess("u1", "s1", "a1", nil)
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	now = now.Add(16 * time.Minute)
	if _, err := m.ParseAccess(access); err == nil {
		t.Fatal("expected token to be expired under advanced clock")
	}
}

func TestTamperedSignatureRejected(t *testing.T) {
	m := newHSManager(t, nil)
	access, _, err := m.CreateAccess("u1", "s1", "a1", []string{"user"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	last := access[len(access)-1]
	replacement := byte('A')
	if last == 'A' {
		replacement = 'B'
	}
	tampered := access[:len(access)-1] + string(replacement)
	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, validAccessClaims(TypeAccess))
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudience(t *testing.T) {
	m := newHSManager(t, nil)
	key := []byte("0123456789abcdef0123456789abcdef")

	wrongIssuer := validAccessClaims(TypeAccess)
	wrongIssuer.Issuer = "other"
	badIssuer, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongIssuer).SignedString(key)
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := validAccessClaims(TypeAccess)
	wrongAudience.Audience = gjwt.ClaimStrings{"other-api"}
	badAudience, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongAudience).SignedString(key)
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	noExpiry := validAccessClaims(TypeAccess)
	noExpiry.ExpiresAt = nil
	unbounded, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, noExpiry).SignedString(key)
	if _, err := m.ParseAccess(unbounded); err == nil {
		t.Fatal("expected token without exp to fail")
	}

	good, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, validAccessClaims(TypeAccess)).SignedString(key)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected well-formed token to pass: %v", err)
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := validAccessClaims(TypeAccess)
	claims.Issuer = ""
	claims.Audience = nil
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, RefreshTTL: time.Hour, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestNewManagerRejectsRefreshShorterThanAccess(t *testing.T) {
	_, err := NewManager(Config{
		AccessTTL:     time.Hour,
		RefreshTTL:    time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
	})
	if err == nil {
		t.Fatal("expected refresh TTL <= access TTL to be rejected")
	}
}
