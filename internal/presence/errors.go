package presence

import "errors"

var (
	// ErrInvalidAdvertisement is returned for structurally malformed raw events.
	ErrInvalidAdvertisement = errors.New("presence: invalid advertisement")

	// ErrInvalidAddress is returned when an address string cannot be parsed.
	ErrInvalidAddress = errors.New("presence: invalid address")
)
