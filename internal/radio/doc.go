// Package radio provides advertisement sources for the watcher.
//
// # Sources
//
//   - HCISource scans a local Bluetooth controller through go-ble's Linux
//     HCI socket driver. On other platforms NewHCISource returns a source
//     whose Start fails with ErrUnsupported.
//   - ReplaySource plays back advertisements from a channel, typically fed
//     from a JSON-lines capture loaded with LoadReplayFile. It is used for
//     offline runs and tests.
//
// Both implement watcher.Source: Start hands every advertisement to the
// supplied callback and reports an unexpected end of scanning through the
// failure callback, never both for the same Stop.
package radio
