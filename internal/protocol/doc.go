// Package protocol implements the text command protocol spoken over the
// MQTT command and notification topics.
//
// Every message has the shape:
//
//	<namespace>-<verb>[-###<payload>]
//
// for example "ble-start", "serial-data-sent-###0A,01" or
// "ble-message-###New device: Sensor-A AABBCCDDEEFF (-50)".
//
// # Parsing
//
// The payload separator is located first, so a payload may contain any
// character including "-" and "###". Only the header is split, and only on
// its first "-": the namespace is a single lowercase token, the verb is the
// remainder and may itself contain "-" (as in "data-sent").
//
// Parse never guesses. A header that does not match the grammar returns
// ErrMalformed, and callers translate a Message into their own closed set
// of typed commands.
//
// # Hex byte lists
//
// ParseHexBytes and FormatHexBytes convert between []byte and the
// comma-separated hex form ("02,0A,FF") used by the serial commands.
package protocol
