package device

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGuard/internal"
)

// ErrDeviceNotFound is returned when a device does not exist or belongs to another user.
var ErrDeviceNotFound = errors.New("device not found")

// ErrTrustedDeviceLimit is returned when trusting another device would exceed the cap.
var ErrTrustedDeviceLimit = errors.New("trusted device limit reached")

// ErrStoreUnavailable wraps backend failures of a [Store].
var ErrStoreUnavailable = errors.New("device store unavailable")

// Type classifies the hardware a user agent runs on.
type Type string

const (
	TypeDesktop     Type = "desktop"
	TypeMobile      Type = "mobile"
	TypeTablet      Type = "tablet"
	TypeSmartTV     Type = "smart_tv"
	TypeGameConsole Type = "game_console"
	TypeUnknown     Type = "unknown"
)

// Device defines a public type used by goGuard APIs.
type Device struct {
	DeviceID    string
	UserID      string
	Fingerprint string
	Name        string
	Type        Type
	OS          string
	Browser     string
	Trusted     bool
	Active      bool
	FirstSeen   time.Time
	LastSeen    time.Time
	LastIP      string
	UserAgent   string
	Language    string
}

// Signals are the request attributes a device is derived from.
type Signals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	AcceptCharset  string
	IP             string
}

// Fingerprint returns the keyed device fingerprint for the signals. The
// client IP is not part of the fingerprint so a roaming device stays the
// same device.
func Fingerprint(key []byte, sig Signals) string {
	return internal.KeyedHash(key, "|", sig.UserAgent, sig.AcceptLanguage, sig.AcceptEncoding, sig.AcceptCharset)
}

// Info is the classification of a user agent string.
type Info struct {
	Type    Type
	OS      string
	Browser string
}

// Name returns the display name "Browser on OS".
func (i Info) Name() string {
	return i.Browser + " on " + i.OS
}

// ParseUserAgent classifies a user agent by substring rules.
func ParseUserAgent(userAgent string) Info {
	ua := strings.ToLower(userAgent)
	info := Info{Type: TypeUnknown, OS: "Unknown", Browser: "Unknown"}

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		info.Type = TypeTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		info.Type = TypeMobile
	case strings.Contains(ua, "smart-tv") || strings.Contains(ua, "smarttv"):
		info.Type = TypeSmartTV
	case strings.Contains(ua, "playstation") || strings.Contains(ua, "xbox") || strings.Contains(ua, "nintendo"):
		info.Type = TypeGameConsole
	case strings.Contains(ua, "windows") || strings.Contains(ua, "mac") || strings.Contains(ua, "linux"):
		info.Type = TypeDesktop
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		info.OS = "iOS"
	case strings.Contains(ua, "mac os"):
		info.OS = "macOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(ua, "edg"):
		info.Browser = "Edge"
	case strings.Contains(ua, "opr") || strings.Contains(ua, "opera"):
		info.Browser = "Opera"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	}

	return info
}
