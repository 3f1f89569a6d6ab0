package protocol

import "errors"

var (
	// ErrEmpty is returned when a message has no content.
	ErrEmpty = errors.New("protocol: empty message")

	// ErrMalformed is returned when a message header does not match
	// <namespace>-<verb>.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrInvalidHex is returned when a hex byte list cannot be parsed.
	ErrInvalidHex = errors.New("protocol: invalid hex byte list")
)
