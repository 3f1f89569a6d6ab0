package uart

import (
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Port is the part of serial.Port a Piper uses.
type Port interface {
	io.Writer
	Close() error
}

// Opener opens a named port in the given mode.
type Opener func(name string, mode *serial.Mode) (Port, error)

// SerialOpener opens real hardware through go.bug.st/serial.
func SerialOpener(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// AvailablePorts lists the serial ports present on this machine.
func AvailablePorts() ([]string, error) {
	return serial.GetPortsList()
}

// Piper frames data and writes it to one serial port.
//
// Thread Safety: All methods are safe for concurrent use. Writes are
// serialised so frames never interleave.
type Piper struct {
	opener Opener

	mu       sync.Mutex
	port     Port
	settings Settings
	stx      []byte
	etx      []byte
}

// NewPiper creates a closed Piper. A nil opener uses SerialOpener.
func NewPiper(opener Opener, stx, etx []byte) *Piper {
	if opener == nil {
		opener = SerialOpener
	}
	return &Piper{
		opener: opener,
		stx:    clone(stx),
		etx:    clone(etx),
	}
}

// Open opens the port described by s, closing any port already open.
func (p *Piper) Open(s Settings) error {
	if s.Port == "" {
		return ErrNoPort
	}
	mode, err := s.Mode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port != nil {
		// The old handle is unusable either way.
		_ = p.port.Close() //nolint:errcheck // Replaced below
		p.port = nil
	}

	port, err := p.opener(s.Port, mode)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.Port, err)
	}
	p.port = port
	p.settings = s
	return nil
}

// Close closes the open port. Closing a closed Piper returns nil.
func (p *Piper) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil
	}
	err := p.port.Close()
	p.port = nil
	if err != nil {
		return fmt.Errorf("closing %s: %w", p.settings.Port, err)
	}
	return nil
}

// IsOpen reports whether a port is open.
func (p *Piper) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port != nil
}

// Settings returns the settings of the open port, or the last one opened.
func (p *Piper) Settings() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSTX replaces the start-of-frame bytes.
func (p *Piper) SetSTX(b []byte) {
	p.mu.Lock()
	p.stx = clone(b)
	p.mu.Unlock()
}

// SetETX replaces the end-of-frame bytes.
func (p *Piper) SetETX(b []byte) {
	p.mu.Lock()
	p.etx = clone(b)
	p.mu.Unlock()
}

// Delimiters returns copies of the current STX and ETX.
func (p *Piper) Delimiters() (stx, etx []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.stx), clone(p.etx)
}

// Frame returns STX ++ data ++ ETX using the current delimiters.
func (p *Piper) Frame(data []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return frame(p.stx, data, p.etx)
}

// Write frames data and writes the whole frame.
//
// Returns:
//   - []byte: The frame that was written
//   - error: ErrNotOpen, or the port's write error
func (p *Piper) Write(data []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return nil, ErrNotOpen
	}

	f := frame(p.stx, data, p.etx)
	for written := 0; written < len(f); {
		n, err := p.port.Write(f[written:])
		if err != nil {
			return nil, fmt.Errorf("writing %s: %w", p.settings.Port, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("writing %s: %w", p.settings.Port, io.ErrShortWrite)
		}
		written += n
	}
	return f, nil
}

func frame(stx, data, etx []byte) []byte {
	f := make([]byte, 0, len(stx)+len(data)+len(etx))
	f = append(f, stx...)
	f = append(f, data...)
	return append(f, etx...)
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
