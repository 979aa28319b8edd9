// Package identity verifies the signed assertion an identity provider hands
// over after its own login flow and turns it into a [goGuard.Identity].
//
// The assertion is a short-lived JWT signed by the provider with a shared
// HS256 secret or an Ed25519 key. goGuard trusts a verified assertion and
// starts a session from it; it never sees passwords.
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidAssertion is returned for any assertion that fails verification.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Config describes the trusted provider.
type Config struct {
	Issuer   string
	Audience string
	// Secret verifies HS256 assertions.
	Secret []byte
	// PublicKey verifies EdDSA assertions. When set, Secret is ignored.
	PublicKey ed25519.PublicKey
	// MaxAge rejects assertions issued longer ago than this, regardless of exp.
	MaxAge time.Duration
	Leeway time.Duration
	Now    func() time.Time
}

// Claims is the assertion payload.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks provider assertions.
type Verifier struct {
	cfg    Config
	method jwt.SigningMethod
	key    any
}

// NewVerifier validates cfg and returns a verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("identity issuer is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	v := &Verifier{cfg: cfg}
	switch {
	case len(cfg.PublicKey) == ed25519.PublicKeySize:
		v.method = jwt.SigningMethodEdDSA
		v.key = cfg.PublicKey
	case len(cfg.PublicKey) > 0:
		return nil, errors.New("identity public key must be an ed25519 key")
	case len(cfg.Secret) >= 32:
		v.method = jwt.SigningMethodHS256
		v.key = cfg.Secret
	default:
		return nil, errors.New("identity secret must be at least 32 bytes")
	}
	return v, nil
}

// Verify checks signature, issuer, audience, expiry and age of assertion and
// returns the identity it carries.
func (v *Verifier) Verify(assertion string) (goGuard.Identity, error) {
	assertion = strings.TrimSpace(assertion)
	if assertion == "" {
		return goGuard.Identity{}, ErrInvalidAssertion
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.cfg.Now),
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return goGuard.Identity{}, ErrInvalidAssertion
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return goGuard.Identity{}, ErrInvalidAssertion
	}
	if v.cfg.Now().Sub(claims.IssuedAt.Time) > v.cfg.MaxAge+v.cfg.Leeway {
		return goGuard.Identity{}, ErrInvalidAssertion
	}

	return goGuard.Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Permissions: claims.Permissions,
		Provider:    claims.Issuer,
	}, nil
}

// Sign creates an assertion for claims with an HS256 secret. Providers and
// tests use it; goGuard itself only verifies.
func Sign(claims Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
