package presence

import (
	"fmt"
	"strings"
	"time"
)

// NoName is shown in place of an unknown device name.
const NoName = "[No name]"

// ConnectionState holds the optional enrichment flags for a device.
type ConnectionState struct {
	Connected bool `json:"connected"`
	Pairable  bool `json:"pairable"`
	Paired    bool `json:"paired"`
}

// Record is the last known state of one device.
//
// Records are values: the Store never mutates a Record it has handed out,
// and callers must not mutate the Payload slice of a Record they received.
type Record struct {
	Key        DeviceKey       `json:"-"`
	Address    uint64          `json:"address"`
	LastSeen   time.Time       `json:"last_seen"`
	Name       string          `json:"name,omitempty"`
	RSSI       int16           `json:"rssi"`
	VendorID   uint16          `json:"vendor_id,omitempty"`
	Payload    []byte          `json:"payload,omitempty"`
	Connection ConnectionState `json:"connection"`
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r.Payload != nil {
		p := make([]byte, len(r.Payload))
		copy(p, r.Payload)
		r.Payload = p
	}
	return r
}

// DisplayName returns the name, or NoName when none is known.
func (r Record) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return NoName
	}
	return r.Name
}

// String returns the one-line form "Name ADDRESS (rssi)".
func (r Record) String() string {
	return fmt.Sprintf("%s %s (%d)", r.DisplayName(), FormatAddress(r.Address), r.RSSI)
}

// Describe returns a multi-line description including connection flags,
// device key, vendor data and the time the device was last seen.
func (r Record) Describe() string {
	data := "00"
	if len(r.Payload) > 0 {
		data = hexDashed(r.Payload)
	}
	return fmt.Sprintf("%s\n\tConnected: %t, Pairable: %t, Paired: %t\n\tDevice id: %s\n\tCompany(SIG) id: %X => Data: %s\n\t%s",
		r.String(),
		r.Connection.Connected, r.Connection.Pairable, r.Connection.Paired,
		r.Key.String(),
		r.VendorID, data,
		r.LastSeen.Format(time.RFC3339),
	)
}

func hexDashed(b []byte) string {
	var sb strings.Builder
	for i, v := range b {
		if i > 0 {
			sb.WriteByte('-')
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}
