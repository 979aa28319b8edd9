package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const unknownSignal = "unknown"

// DeriveKey expands a master secret into a purpose-bound 32-byte key.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty master secret")
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte("goguard/"+purpose))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// KeyedHash returns hex(HMAC-SHA256(key, parts joined by sep)).
// Empty parts are replaced with "unknown" so missing signals still hash stably.
func KeyedHash(key []byte, sep string, parts ...string) string {
	mac := hmac.New(sha256.New, key)
	for i, p := range parts {
		if i > 0 {
			mac.Write([]byte(sep))
		}
		p = strings.TrimSpace(p)
		if p == "" {
			p = unknownSignal
		}
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// ConstantTimeEqual compares two strings without leaking the position of the
// first mismatch. Empty inputs never match.
func ConstantTimeEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
