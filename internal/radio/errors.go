package radio

import "errors"

var (
	// ErrAlreadyRunning is returned by Start when the source is scanning.
	ErrAlreadyRunning = errors.New("radio: source already running")

	// ErrUnsupported is returned by HCISource.Start on platforms without
	// an HCI socket driver.
	ErrUnsupported = errors.New("radio: HCI scanning is not supported on this platform")

	// ErrScanEnded is reported through the failure callback when scanning
	// stops without Stop being called.
	ErrScanEnded = errors.New("radio: scan ended unexpectedly")

	// ErrReplayExhausted is reported when a replay feed is closed.
	ErrReplayExhausted = errors.New("radio: replay feed exhausted")
)
