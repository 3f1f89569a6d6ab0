package presence

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Advertisement is one raw event from a radio source.
type Advertisement struct {
	Address   uint64
	Timestamp time.Time
	RSSI      int16
	LocalName string

	// ManufacturerData is the manufacturer-specific AD structure as
	// received: a little-endian company identifier followed by the payload.
	ManufacturerData []byte
}

// Validate reports whether the advertisement is structurally usable.
//
// Returns:
//   - error: ErrInvalidAdvertisement (wrapped with the reason), or nil
func (a Advertisement) Validate() error {
	switch {
	case a.Address == 0:
		return fmt.Errorf("%w: zero address", ErrInvalidAdvertisement)
	case a.Address > MaxAddress:
		return fmt.Errorf("%w: address %X exceeds 48 bits", ErrInvalidAdvertisement, a.Address)
	case a.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidAdvertisement)
	}
	if _, _, err := SplitManufacturerData(a.ManufacturerData); err != nil {
		return err
	}
	return nil
}

// SplitManufacturerData splits the manufacturer-specific AD structure into
// its company identifier and the payload that follows.
//
// Empty data yields (0, nil, nil). A single byte cannot hold a company
// identifier and is rejected.
func SplitManufacturerData(md []byte) (uint16, []byte, error) {
	switch len(md) {
	case 0:
		return 0, nil, nil
	case 1:
		return 0, nil, fmt.Errorf("%w: truncated manufacturer data", ErrInvalidAdvertisement)
	}
	vendor := binary.LittleEndian.Uint16(md[:2])
	var payload []byte
	if len(md) > 2 {
		payload = make([]byte, len(md)-2)
		copy(payload, md[2:])
	}
	return vendor, payload, nil
}

// ManufacturerData builds the AD structure for vendor and payload. It is the
// inverse of SplitManufacturerData.
func ManufacturerData(vendor uint16, payload []byte) []byte {
	md := make([]byte, 2, 2+len(payload))
	binary.LittleEndian.PutUint16(md, vendor)
	return append(md, payload...)
}

// Observation is the input to Store.Merge: a decoded advertisement,
// optionally folded together with enrichment results.
type Observation struct {
	Address    uint64
	ObservedAt time.Time
	Name       string
	RSSI       int16
	VendorID   uint16
	Payload    []byte

	// Connection is nil when no enrichment is available for this event.
	Connection *ConnectionState
}

// ObservationFrom decodes a validated advertisement into an Observation.
// Malformed manufacturer data decodes as "no vendor data".
func ObservationFrom(a Advertisement) Observation {
	vendor, payload, _ := SplitManufacturerData(a.ManufacturerData)
	return Observation{
		Address:    a.Address,
		ObservedAt: a.Timestamp,
		Name:       a.LocalName,
		RSSI:       a.RSSI,
		VendorID:   vendor,
		Payload:    payload,
	}
}
