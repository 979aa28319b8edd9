package middleware

import (
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
)

// Cookie names.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieCSRFToken    = "csrf-token"
	CookieCSRFFP       = "csrf-fp"
	// CookieCSRFMirror carries the bare token value and is readable by
	// client script.
	CookieCSRFMirror = "csrf-token-mirror"

	HeaderCSRFToken = "X-CSRF-Token"
)

func baseCookie(engine *goGuard.Engine, name, value string, maxAge time.Duration) *http.Cookie {
	sec := engine.Config().Security
	path := sec.CookiePath
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   sec.CookieDomain,
		HttpOnly: true,
		Secure:   sec.RequireSecureCookies,
		SameSite: sec.SameSitePolicy,
	}
	switch {
	case maxAge > 0:
		c.MaxAge = int(maxAge / time.Second)
	case maxAge < 0:
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// SetTokenCookies stores a token pair in the access_token and refresh_token
// cookies, each living as long as its token.
func SetTokenCookies(w http.ResponseWriter, engine *goGuard.Engine, pair *goGuard.TokenPair) {
	http.SetCookie(w, baseCookie(engine, CookieAccessToken, pair.AccessToken, time.Duration(pair.ExpiresIn)*time.Second))
	http.SetCookie(w, baseCookie(engine, CookieRefreshToken, pair.RefreshToken, time.Duration(pair.RefreshExpiresIn)*time.Second))
}

// ClearTokenCookies expires both token cookies.
func ClearTokenCookies(w http.ResponseWriter, engine *goGuard.Engine) {
	http.SetCookie(w, baseCookie(engine, CookieAccessToken, "", -1))
	http.SetCookie(w, baseCookie(engine, CookieRefreshToken, "", -1))
}

// SetCSRFCookies stores a CSRF token and mirrors its value in the
// X-CSRF-Token response header and the script-readable mirror cookie.
func SetCSRFCookies(w http.ResponseWriter, engine *goGuard.Engine, tok *goGuard.CSRFToken) {
	maxAge := tok.ExpiresAt.Sub(tok.IssuedAt)
	http.SetCookie(w, baseCookie(engine, CookieCSRFToken, tok.Cookie, maxAge))
	http.SetCookie(w, baseCookie(engine, CookieCSRFFP, tok.Fingerprint, maxAge))

	mirror := baseCookie(engine, CookieCSRFMirror, tok.Value, maxAge)
	mirror.HttpOnly = false
	http.SetCookie(w, mirror)

	w.Header().Set(HeaderCSRFToken, tok.Value)
}

// ClearCSRFCookies expires all CSRF cookies.
func ClearCSRFCookies(w http.ResponseWriter, engine *goGuard.Engine) {
	http.SetCookie(w, baseCookie(engine, CookieCSRFToken, "", -1))
	http.SetCookie(w, baseCookie(engine, CookieCSRFFP, "", -1))
	mirror := baseCookie(engine, CookieCSRFMirror, "", -1)
	mirror.HttpOnly = false
	http.SetCookie(w, mirror)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
