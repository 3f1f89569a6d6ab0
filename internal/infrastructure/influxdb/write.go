package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	// MeasurementRSSI holds one point per accepted advertisement.
	MeasurementRSSI = "ble_rssi"

	// MeasurementPresence holds one point per lifecycle transition
	// (new, name_changed, data_changed, timed_out).
	MeasurementPresence = "ble_presence"
)

// WriteRSSI records the signal strength of one advertisement.
//
// Parameters:
//   - deviceKey: Cache key of the device (address hex or stable id)
//   - address: Current radio address, hex encoded
//   - name: Display name of the device
//   - rssi: Signal strength in dBm
//   - vendorID: Bluetooth SIG company identifier, 0 when absent
//   - at: Observation time from the advertisement
//
// Example:
//
//	client.WriteRSSI("AABBCCDDEEFF", "AABBCCDDEEFF", "Tag", -61, 0x004C, adv.Timestamp)
func (c *Client) WriteRSSI(deviceKey, address, name string, rssi int, vendorID uint16, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(rssiPoint(deviceKey, address, name, rssi, vendorID, at))
}

// WritePresence records a presence transition for a device.
//
// Parameters:
//   - deviceKey: Cache key of the device
//   - event: Transition name, e.g. "new_discovery" or "timed_out"
//   - name: Display name at the time of the transition
//   - at: Time of the transition
func (c *Client) WritePresence(deviceKey, event, name string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(presencePoint(deviceKey, event, name, at))
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}

func rssiPoint(deviceKey, address, name string, rssi int, vendorID uint16, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRSSI,
		map[string]string{
			"device_key": deviceKey,
			"address":    address,
			"name":       name,
		},
		map[string]any{
			"rssi":      rssi,
			"vendor_id": int(vendorID),
		},
		at,
	)
}

// presencePoint writes present=0 for a timeout and 1 otherwise, so a
// dashboard can plot presence as a step function.
func presencePoint(deviceKey, event, name string, at time.Time) *write.Point {
	present := 1
	if event == "timed_out" {
		present = 0
	}
	return write.NewPoint(
		MeasurementPresence,
		map[string]string{
			"device_key": deviceKey,
			"event":      event,
		},
		map[string]any{
			"present": present,
			"name":    name,
		},
		at,
	)
}
