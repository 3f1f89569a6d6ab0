package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no known device has the address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when the address or stable id is already registered.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidDevice is returned when known-device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidSighting is returned when a sighting cannot be recorded.
	ErrInvalidSighting = errors.New("device: invalid sighting")
)
