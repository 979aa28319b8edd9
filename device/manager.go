package device

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Manager registers and maintains a user's devices on top of a [Store].
type Manager struct {
	store      Store
	key        []byte
	maxTrusted int
	now        func() time.Time
}

// NewManager creates a [Manager]. key is the fingerprint HMAC key; a
// maxTrusted of zero or less disables the trusted device cap.
func NewManager(store Store, key []byte, maxTrusted int, now func() time.Time) (*Manager, error) {
	if store == nil {
		return nil, errors.New("device store is nil")
	}
	if len(key) == 0 {
		return nil, errors.New("fingerprint key is empty")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:      store,
		key:        append([]byte(nil), key...),
		maxTrusted: maxTrusted,
		now:        now,
	}, nil
}

// Register records a sign-in from the device described by sig. It returns
// the stored device and whether it was newly created.
func (m *Manager) Register(ctx context.Context, userID string, sig Signals) (*Device, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, false, errors.New("user id is required")
	}
	now := m.now()
	info := ParseUserAgent(sig.UserAgent)
	candidate := &Device{
		DeviceID:    ulid.Make().String(),
		UserID:      userID,
		Fingerprint: Fingerprint(m.key, sig),
		Name:        info.Name(),
		Type:        info.Type,
		OS:          info.OS,
		Browser:     info.Browser,
		Active:      true,
		FirstSeen:   now,
		LastSeen:    now,
		LastIP:      sig.IP,
		UserAgent:   sig.UserAgent,
		Language:    sig.AcceptLanguage,
	}
	return m.store.Upsert(ctx, candidate)
}

// List returns the user's devices, most recently seen first.
func (m *Manager) List(ctx context.Context, userID string, includeInactive bool) ([]*Device, error) {
	all, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if includeInactive {
		return all, nil
	}
	out := make([]*Device, 0, len(all))
	for _, d := range all {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

// Get returns one device owned by the user.
func (m *Manager) Get(ctx context.Context, userID, deviceID string) (*Device, error) {
	return m.store.Get(ctx, userID, deviceID)
}

// Trust marks a device trusted. Trusting an already trusted device is a
// no-op. The cap holds under concurrent calls.
func (m *Manager) Trust(ctx context.Context, userID, deviceID string) (*Device, error) {
	return m.store.Trust(ctx, userID, deviceID, m.maxTrusted)
}

// Deactivate marks a device inactive and drops its trust.
func (m *Manager) Deactivate(ctx context.Context, userID, deviceID string) (*Device, error) {
	d, err := m.store.Get(ctx, userID, deviceID)
	if err != nil {
		return nil, err
	}
	if !d.Active && !d.Trusted {
		return d, nil
	}
	d.Active = false
	d.Trusted = false
	if err := m.store.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
