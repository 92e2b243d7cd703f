package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when inserting a device whose address is already stored.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidAddress is returned when address validation fails.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidName is returned when a device name is too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrFeedsStale is returned by a Store write that committed but whose
	// feed republish failed. The write is not rolled back.
	ErrFeedsStale = errors.New("device: write committed but feeds not republished")

	// ErrStoreClosed is returned by a Store after Close.
	ErrStoreClosed = errors.New("device: store closed")

	// ErrStoreUnavailable is returned when no Store is published within the wait timeout.
	ErrStoreUnavailable = errors.New("device: store unavailable")
)
