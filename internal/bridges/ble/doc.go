// Package ble connects a presence watcher to the MQTT command protocol.
//
// The bridge consumes ble-* commands from the BLE consumer topic and
// publishes ble-* notifications on the producer topic.
//
// # Commands
//
//	ble-start                 start listening
//	ble-stop                  stop listening
//	ble-devices               publish the current device list
//	ble-clear                 remove all device filters
//	ble-add-###<filter>       add a device filter (key or address)
//	ble-filters               publish the active filters
//	ble-timeout-###<seconds>  change the heartbeat timeout
//
// # Notifications
//
//	ble-scan-started
//	ble-scan-stopped[-###<reason>]
//	ble-devices-###\n\t<device>\n\n...
//	ble-message-###New device: <device>
//	ble-message-###Device name changed: <device>
//	ble-message-###Device data changed: <device>
//	ble-message-###Device timeout: <device>
//	ble-filters-###Filter: <f>\n...
//
// When any filter is set, per-device messages are published only for
// matching devices. Plain discovered events are never published.
//
// Commands are executed one at a time on the bridge's own goroutine, never
// on the MQTT client's callback goroutine.
package ble
