package ble

import "errors"

var (
	// ErrWrongNamespace is returned for a message that is not ble-*.
	ErrWrongNamespace = errors.New("ble: not a ble command")

	// ErrUnknownCommand is returned for an unrecognised verb.
	ErrUnknownCommand = errors.New("ble: unknown command")

	// ErrInvalidPayload is returned when a command's payload is missing or unusable.
	ErrInvalidPayload = errors.New("ble: invalid command payload")

	// ErrCommandQueueFull is returned when commands arrive faster than they run.
	ErrCommandQueueFull = errors.New("ble: command queue full")
)
