package uart

import "errors"

var (
	// ErrNotOpen is returned when writing or closing without an open port.
	ErrNotOpen = errors.New("uart: port not open")

	// ErrInvalidSettings is returned for an unparseable or unsupported port setting.
	ErrInvalidSettings = errors.New("uart: invalid port settings")

	// ErrNoPort is returned by Open when no port name is configured.
	ErrNoPort = errors.New("uart: no port name")
)
