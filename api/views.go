package api

import (
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/device"
	"github.com/MrEthical07/goGuard/session"
)

type sessionView struct {
	SessionID      string      `json:"sessionId"`
	DeviceID       string      `json:"deviceId,omitempty"`
	Permissions    []string    `json:"permissions"`
	IP             string      `json:"ip,omitempty"`
	UserAgent      string      `json:"userAgent,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastActivityAt time.Time   `json:"lastActivityAt"`
	ExpiresAt      time.Time   `json:"expiresAt"`
	Active         bool        `json:"isActive"`
	Current        bool        `json:"isCurrent"`
	EndReason      string      `json:"endReason,omitempty"`
	Device         *deviceView `json:"device,omitempty"`
}

func newSessionView(s *session.Session, currentID string) sessionView {
	return sessionView{
		SessionID:      s.SessionID,
		DeviceID:       s.DeviceID,
		Permissions:    s.Permissions,
		IP:             s.IP,
		UserAgent:      s.UserAgent,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		Active:         s.Active,
		Current:        s.SessionID == currentID,
		EndReason:      s.EndReason,
	}
}

type deviceView struct {
	DeviceID  string      `json:"deviceId"`
	Name      string      `json:"name"`
	Type      device.Type `json:"type"`
	OS        string      `json:"os"`
	Browser   string      `json:"browser"`
	Trusted   bool        `json:"isTrusted"`
	Active    bool        `json:"isActive"`
	FirstSeen time.Time   `json:"firstSeen"`
	LastSeen  time.Time   `json:"lastSeen"`
	LastIP    string      `json:"lastIp,omitempty"`
}

func newDeviceView(d *device.Device) *deviceView {
	if d == nil {
		return nil
	}
	return &deviceView{
		DeviceID:  d.DeviceID,
		Name:      d.Name,
		Type:      d.Type,
		OS:        d.OS,
		Browser:   d.Browser,
		Trusted:   d.Trusted,
		Active:    d.Active,
		FirstSeen: d.FirstSeen,
		LastSeen:  d.LastSeen,
		LastIP:    d.LastIP,
	}
}

type tokensView struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	ExpiresIn        int64     `json:"expiresIn"`
	RefreshExpiresIn int64     `json:"refreshExpiresIn"`
	ExpiresAt        time.Time `json:"expiresAt"`
}

func newTokensView(p *goGuard.TokenPair) tokensView {
	return tokensView{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        p.ExpiresIn,
		RefreshExpiresIn: p.RefreshExpiresIn,
		ExpiresAt:        p.AccessExpiresAt,
	}
}
