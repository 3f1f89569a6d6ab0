package serial

import "errors"

var (
	// ErrWrongNamespace is returned for a message that is not serial-*.
	ErrWrongNamespace = errors.New("serial: not a serial command")

	// ErrUnknownCommand is returned for an unrecognised verb.
	ErrUnknownCommand = errors.New("serial: unknown command")

	// ErrInvalidPayload is returned when a command's payload is missing or unusable.
	ErrInvalidPayload = errors.New("serial: invalid command payload")

	// ErrCommandQueueFull is returned when commands arrive faster than they run.
	ErrCommandQueueFull = errors.New("serial: command queue full")
)
