package device

import (
	"testing"
	"time"
)

// FuzzDeviceDecode exercises the binary device decoder with arbitrary inputs.
// Malformed records must produce errors, never panics.
func FuzzDeviceDecode(f *testing.F) {
	d := &Device{
		DeviceID:    "01HZX",
		UserID:      "user1",
		Fingerprint: "abcd",
		Name:        "Chrome on macOS",
		Type:        TypeDesktop,
		OS:          "macOS",
		Browser:     "Chrome",
		Active:      true,
		FirstSeen:   time.UnixMilli(1700000000000),
		LastSeen:    time.UnixMilli(1700003600000),
	}
	encoded, err := Encode(d)
	if err == nil {
		f.Add(encoded)
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{1})
	f.Add([]byte{1, 255, 255})
	if len(encoded) > 12 {
		f.Add(encoded[:12])
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		out, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(out)
		if err != nil {
			t.Fatalf("re-encode decoded device: %v", err)
		}
		if string(again) != string(data) {
			t.Fatal("decode/encode is not stable")
		}
	})
}
