// Package serial connects the UART framer to the MQTT command protocol and
// forwards vendor payloads from selected BLE devices to the port.
//
// # Commands (serial consumer topic)
//
//	serial-open[-###<settings>]   open the port, settings override config
//	serial-close                  close the port
//	serial-stx-###02,0A           set start-of-frame bytes (empty clears)
//	serial-etx-###03              set end-of-frame bytes (empty clears)
//	serial-message-###0A,01,02    write one framed message
//
// # Notifications (serial producer topic)
//
//	serial-opened
//	serial-closed
//	serial-data-sent-###02,0A,01,02,03
//	serial-error-###<message>
//
// # Forwarding
//
// When a watcher is supplied, every newDiscovery or dataChanged event for
// a device on the forward list whose record carries a payload is written as
// one frame. Forwarding while the port is closed is skipped.
package serial
