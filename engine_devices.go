package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/device"
)

func deviceSignals(rc RequestContext) device.Signals {
	return device.Signals{
		UserAgent:      rc.UserAgent,
		AcceptLanguage: rc.AcceptLanguage,
		AcceptEncoding: rc.AcceptEncoding,
		AcceptCharset:  rc.AcceptCharset,
		IP:             rc.IP,
	}
}

// RegisterDevice records a sign-in from the device described by rc. A known
// fingerprint reactivates the existing device and refreshes its last seen
// time and IP; otherwise a new untrusted device is created.
//
//	Docs: docs/devices.md
func (e *Engine) RegisterDevice(ctx context.Context, userID string, rc RequestContext) (*device.Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, ErrIdentityInvalid
	}
	d, _, err := e.registerDevice(ctx, userID, rc)
	if err != nil {
		return nil, e.deviceError(ctx, "register_device", err)
	}
	return d, nil
}

func (e *Engine) registerDevice(ctx context.Context, userID string, rc RequestContext) (*device.Device, bool, error) {
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	d, created, err := e.devices.Register(opCtx, userID, deviceSignals(rc))
	if err != nil {
		return nil, false, err
	}

	eventType := eventDeviceUpdated
	if created {
		eventType = eventDeviceRegistered
		e.metricInc(MetricDeviceRegistered)
	}
	e.emitEvent(ctx, eventType, SeverityLow, true, eventFields{
		userID: userID,
		rc:     &rc,
		metadata: func() map[string]string {
			return map[string]string{
				"device_id":   d.DeviceID,
				"device_type": string(d.Type),
			}
		},
	})
	return d, created, nil
}

// GetUserDevices returns the user's devices, most recently seen first.
func (e *Engine) GetUserDevices(ctx context.Context, userID string, includeInactive bool) ([]*device.Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	out, err := e.devices.List(opCtx, userID, includeInactive)
	if err != nil {
		return nil, e.deviceError(ctx, "list_devices", err)
	}
	return out, nil
}

// TrustDevice marks a device trusted, up to Device.MaxTrustedDevices active
// trusted devices per user.
//
// TrustDevice returns [ErrDeviceNotFound] or [ErrTrustedDeviceLimit].
func (e *Engine) TrustDevice(ctx context.Context, userID, deviceID string) (*device.Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	d, err := e.devices.Trust(opCtx, userID, deviceID)
	if err != nil {
		return nil, e.deviceError(ctx, "trust_device", err)
	}

	e.metricInc(MetricDeviceTrusted)
	e.emitEvent(ctx, eventDeviceTrusted, SeverityMedium, true, eventFields{
		userID:   userID,
		metadata: deviceMetadata(deviceID),
	})
	return d, nil
}

// DeactivateDevice marks a device inactive and drops its trust. Sessions
// started from it are not ended.
func (e *Engine) DeactivateDevice(ctx context.Context, userID, deviceID string) (*device.Device, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	d, err := e.devices.Deactivate(opCtx, userID, deviceID)
	if err != nil {
		return nil, e.deviceError(ctx, "deactivate_device", err)
	}

	e.emitEvent(ctx, eventDeviceDeactivated, SeverityMedium, true, eventFields{
		userID:   userID,
		metadata: deviceMetadata(deviceID),
	})
	return d, nil
}

func deviceMetadata(deviceID string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"device_id": deviceID}
	}
}

func (e *Engine) deviceError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return ErrDeviceNotFound
	case errors.Is(err, device.ErrTrustedDeviceLimit):
		return ErrTrustedDeviceLimit
	default:
		return e.storeUnavailable(ctx, op, err)
	}
}
