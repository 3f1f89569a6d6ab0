// Package uart writes STX/ETX framed data to a serial port.
//
// A Piper owns at most one open port. Every write is framed as
//
//	STX ++ data ++ ETX
//
// where STX and ETX are configurable byte sequences (either may be empty).
// Ports are opened through an Opener so tests can substitute a fake; the
// production opener is go.bug.st/serial.
//
// Port settings use the text form carried by the serial-open command:
//
//	port:/dev/ttyUSB0,baudRate:115200,parity:None,dataBits:8,stopBits:One
//	comPort:3,baudRate:9600            (comPort:N means COMN)
package uart
