package internal

import (
	"testing"
)

// FuzzParseSessionID exercises session id parsing with arbitrary strings.
// Invalid inputs must return errors without panicking.
func FuzzParseSessionID(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAA")
	f.Add("!!!not-base64!!!")

	if sid, err := NewSessionID(); err == nil {
		f.Add(sid.String())
	}

	f.Fuzz(func(t *testing.T, input string) {
		sid, err := ParseSessionID(input)
		if err != nil {
			return
		}
		again, err := ParseSessionID(sid.String())
		if err != nil {
			t.Fatalf("roundtrip parse failed: %v", err)
		}
		if again != sid {
			t.Fatalf("roundtrip mismatch: %x vs %x", again, sid)
		}
	})
}

func FuzzValidFamilyID(f *testing.F) {
	f.Add("")
	f.Add("fam_")
	f.Add("fam_zz112233445566778899aabbccddeeff")
	if id, err := NewFamilyID(); err == nil {
		f.Add(id)
	}

	f.Fuzz(func(t *testing.T, input string) {
		if ValidFamilyID(input) && len(input) != 36 {
			t.Fatalf("accepted family id with wrong length: %q", input)
		}
	})
}
