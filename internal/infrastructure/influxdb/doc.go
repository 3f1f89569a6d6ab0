// Package influxdb provides InfluxDB connectivity for Bluerial.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes, and health monitoring.
//
// # Measurements
//
//	ble_rssi      tags: device_key, address, name   fields: rssi, vendor_id
//	ble_presence  tags: device_key, event           fields: present, name
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteRSSI("AABBCCDDEEFF", "AABBCCDDEEFF", "Tag", -61, 0x004C, time.Now())
package influxdb
