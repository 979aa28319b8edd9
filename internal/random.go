package internal

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

type SessionID [16]byte

const (
	familyIDRawSize  = 16
	csrfValueRawSize = 32
	familyIDPrefix   = "fam_"
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewFamilyID returns a refresh family identifier of the form fam_<32 hex>.
func NewFamilyID() (string, error) {
	var raw [familyIDRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return familyIDPrefix + hex.EncodeToString(raw[:]), nil
}

// ValidFamilyID reports whether id has the shape produced by NewFamilyID.
func ValidFamilyID(id string) bool {
	if len(id) != len(familyIDPrefix)+familyIDRawSize*2 || id[:len(familyIDPrefix)] != familyIDPrefix {
		return false
	}
	_, err := hex.DecodeString(id[len(familyIDPrefix):])
	return err == nil
}

// NewCSRFValue returns 32 random bytes, hex encoded.
func NewCSRFValue() (string, error) {
	var raw [csrfValueRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}
