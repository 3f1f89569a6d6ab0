// Package telemetry turns presence events into InfluxDB points.
//
// A Sink subscribes to a watcher and writes:
//
//   - ble_rssi for every discovered event (tags device_key, address, name;
//     fields rssi, vendor_id), optionally throttled per device
//   - ble_presence for new_discovery, name_changed, data_changed and
//     timed_out (tags device_key, event; fields present, name)
//   - ble_scanner for started and stopped (tag event; fields listening,
//     reason on a spontaneous stop)
//
// Writes go through the InfluxDB client's non-blocking write API, so the
// watcher's dispatcher goroutine is never held up by the network.
//
//	sink := telemetry.NewSink(influxClient, telemetry.Options{RSSIInterval: time.Second})
//	unsubscribe := w.Subscribe(sink.Handle)
package telemetry
