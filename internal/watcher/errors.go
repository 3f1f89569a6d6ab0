package watcher

import "errors"

var (
	// ErrNilSource is returned by New when no radio source is supplied.
	ErrNilSource = errors.New("watcher: source is required")

	// ErrInvalidKeying is returned by New for an unknown keying scheme.
	ErrInvalidKeying = errors.New("watcher: invalid keying scheme")

	// ErrInvalidTimeout is returned by SetHeartbeatTimeout for non-positive values.
	ErrInvalidTimeout = errors.New("watcher: heartbeat timeout must be positive")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("watcher: closed")

	// ErrNotFound is returned (possibly wrapped) by an Enricher that has no
	// information about an address. It counts as a miss, not a failure.
	ErrNotFound = errors.New("watcher: address not resolvable")
)
