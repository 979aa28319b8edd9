package session

import "time"

// Session records one authenticated login context.
//
// Sessions are created active and only ever move to inactive. A session id
// never becomes active again once ended.
type Session struct {
	SessionID   string
	UserID      string
	DeviceID    string
	FamilyID    string
	Permissions []string

	// Version is the user's session version at creation. It increases
	// monotonically per user and lets callers reject sessions older than a
	// required version.
	Version int64

	IP        string
	UserAgent string

	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time

	Active    bool
	EndedAt   time.Time
	EndReason string
}

// Expired reports whether the session is past its absolute expiry or has
// been idle for longer than idle. A zero idle disables the idle check.
func (s *Session) Expired(now time.Time, idle time.Duration) bool {
	if !s.ExpiresAt.After(now) {
		return true
	}
	return idle > 0 && now.Sub(s.LastActivityAt) > idle
}
