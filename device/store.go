package device

import "context"

// Store persists devices.
//
// Upsert must be atomic on (UserID, Fingerprint): concurrent registrations of
// the same fingerprint yield a single device.
type Store interface {
	// Upsert inserts d when its fingerprint is new for the user, otherwise it
	// reactivates the existing device and refreshes LastSeen, LastIP,
	// UserAgent and Language. It returns the stored device and whether it was
	// created.
	Upsert(ctx context.Context, d *Device) (*Device, bool, error)
	Get(ctx context.Context, userID, deviceID string) (*Device, error)
	ListForUser(ctx context.Context, userID string) ([]*Device, error)
	// Update overwrites the mutable fields of an existing device.
	Update(ctx context.Context, d *Device) error
	// Trust marks the device trusted unless the user already holds
	// maxTrusted trusted devices, in which case it returns
	// ErrTrustedDeviceLimit. The count and the write are one atomic step. A
	// maxTrusted of zero or less disables the cap.
	Trust(ctx context.Context, userID, deviceID string, maxTrusted int) (*Device, error)
}
