package radio

import (
	"time"

	"github.com/go-ble/ble/linux/hci/cmd"
)

// HCIOptions configures an HCISource.
type HCIOptions struct {
	// DeviceID is the adapter index (hci0 = 0).
	DeviceID int

	// ActiveScan sends scan requests so scan responses carrying names
	// are received.
	ActiveScan bool

	// AllowDuplicates reports every advertisement instead of letting the
	// controller filter repeats.
	AllowDuplicates bool

	// Logger is optional.
	Logger Logger

	// Now overrides the timestamp clock, for tests.
	Now func() time.Time
}

// scanParams returns the LE scan parameters for opts: a 10ms window every
// 10ms, accepting all advertisers.
func scanParams(opts HCIOptions) cmd.LESetScanParameters {
	scanType := uint8(0x00)
	if opts.ActiveScan {
		scanType = 0x01
	}
	return cmd.LESetScanParameters{
		LEScanType:           scanType,
		LEScanInterval:       0x0010, // N * 0.625ms
		LEScanWindow:         0x0010, // N * 0.625ms
		OwnAddressType:       0x00,   // public
		ScanningFilterPolicy: 0x00,   // accept all
	}
}
