package bluetooth

import (
	"context"
	"errors"
)

// Status describes whether a bonded-device snapshot could be taken.
type Status int

const (
	StatusAvailable Status = iota
	StatusPermissionDenied
	StatusAdapterUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusAvailable:
		return "available"
	case StatusPermissionDenied:
		return "permission_denied"
	case StatusAdapterUnavailable:
		return "adapter_unavailable"
	default:
		return "unknown"
	}
}

var (
	// ErrDisabled is reported when Bluetooth support is switched off in configuration.
	ErrDisabled = errors.New("bluetooth: disabled")

	// ErrAdapterNotFound is reported when the configured adapter is not on the bus.
	ErrAdapterNotFound = errors.New("bluetooth: adapter not found")

	// ErrAdapterPoweredOff is reported when the adapter exists but is not powered.
	ErrAdapterPoweredOff = errors.New("bluetooth: adapter powered off")

	// ErrPermissionDenied is reported when the permission checker refuses discovery.
	ErrPermissionDenied = errors.New("bluetooth: permission denied")

	// ErrWatchClosed is returned by Watch when the bus connection goes away.
	ErrWatchClosed = errors.New("bluetooth: signal channel closed")
)

// BondedDevice is one entry of a bonded-device snapshot.
// Name may be empty when the adapter reports none.
type BondedDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Probe is the outcome of asking the Bluetooth stack for bonded devices.
// Devices is only meaningful when Status is StatusAvailable. Err carries
// the diagnostic cause for the other statuses.
type Probe struct {
	Status  Status
	Devices []BondedDevice
	Err     error
}

// Available returns a successful probe. A nil slice is normalised to empty
// so that callers can tell "no devices" apart from "no snapshot".
func Available(devices []BondedDevice) Probe {
	if devices == nil {
		devices = []BondedDevice{}
	}
	return Probe{Status: StatusAvailable, Devices: devices}
}

// Denied returns a permission-denied probe.
func Denied(err error) Probe {
	return Probe{Status: StatusPermissionDenied, Err: err}
}

// Unavailable returns an adapter-unavailable probe.
func Unavailable(err error) Probe {
	return Probe{Status: StatusAdapterUnavailable, Err: err}
}

// Prober takes bonded-device snapshots.
type Prober interface {
	Probe(ctx context.Context) Probe
}

// PermissionChecker answers whether this process may enumerate devices.
type PermissionChecker interface {
	HasDeviceDiscoveryPermission(ctx context.Context) bool
}

// Watcher invokes fn whenever the bonded set or adapter state may have changed.
// Watch blocks until ctx is cancelled or the underlying source fails.
type Watcher interface {
	Watch(ctx context.Context, fn func()) error
}

// Disabled is a Prober used when Bluetooth support is switched off.
type Disabled struct{}

// Probe always reports the adapter as unavailable.
func (Disabled) Probe(context.Context) Probe {
	return Unavailable(ErrDisabled)
}

// Watch blocks until ctx is done; a disabled adapter never changes.
func (Disabled) Watch(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return nil
}
