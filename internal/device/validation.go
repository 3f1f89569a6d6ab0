package device

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/presence"
)

// Field limits.
const (
	MaxStableIDLength = 128

	// MaxNameLength matches the longest local name a BLE device can advertise.
	MaxNameLength = 248
)

// ValidateKnownDevice checks a registry entry before it is persisted.
//
// Returns:
//   - error: ErrInvalidDevice wrapped with the failing field, or nil
func ValidateKnownDevice(d KnownDevice) error {
	if d.Address == 0 || d.Address > presence.MaxAddress {
		return fmt.Errorf("%w: address %#x out of range", ErrInvalidDevice, d.Address)
	}

	id := strings.TrimSpace(d.StableID)
	if id == "" {
		return fmt.Errorf("%w: stable id is required", ErrInvalidDevice)
	}
	if id != d.StableID {
		return fmt.Errorf("%w: stable id %q has surrounding spaces", ErrInvalidDevice, d.StableID)
	}
	if len(id) > MaxStableIDLength {
		return fmt.Errorf("%w: stable id longer than %d", ErrInvalidDevice, MaxStableIDLength)
	}
	if strings.IndexFunc(id, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: stable id contains control characters", ErrInvalidDevice)
	}

	if len(d.Name) > MaxNameLength {
		return fmt.Errorf("%w: name longer than %d", ErrInvalidDevice, MaxNameLength)
	}
	return nil
}

// KnownDeviceFromConfig converts a config seed entry.
func KnownDeviceFromConfig(c config.KnownDeviceConfig) (KnownDevice, error) {
	addr, err := presence.ParseAddress(c.Address)
	if err != nil {
		return KnownDevice{}, fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	d := KnownDevice{
		Address:  addr,
		StableID: strings.TrimSpace(c.StableID),
		Name:     strings.TrimSpace(c.Name),
		Connection: presence.ConnectionState{
			Pairable: c.Pairable,
			Paired:   c.Paired,
		},
	}
	if err := ValidateKnownDevice(d); err != nil {
		return KnownDevice{}, err
	}
	return d, nil
}
