package uart

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
)

// fakePort records writes. chunk limits bytes accepted per Write call.
type fakePort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	chunk    int
	writeErr error
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeOpener struct {
	ports []*fakePort
	names []string
	modes []*serial.Mode
	err   error
}

func (o *fakeOpener) open(name string, mode *serial.Mode) (Port, error) {
	if o.err != nil {
		return nil, o.err
	}
	p := &fakePort{}
	o.ports = append(o.ports, p)
	o.names = append(o.names, name)
	o.modes = append(o.modes, mode)
	return p, nil
}

func defaultSettings() Settings {
	return SettingsFromConfig(config.Default().Serial)
}

func TestParseSettings(t *testing.T) {
	base := defaultSettings()

	got, err := ParseSettings("port:/dev/ttyUSB0, baudRate:115200,parity:Even,dataBits:7,stopBits:Two", base)
	require.NoError(t, err)
	assert.Equal(t, Settings{Port: "/dev/ttyUSB0", BaudRate: 115200, Parity: "Even", DataBits: 7, StopBits: "Two"}, got)

	got, err = ParseSettings("comPort:3", base)
	require.NoError(t, err)
	assert.Equal(t, "COM3", got.Port)
	assert.Equal(t, base.BaudRate, got.BaudRate, "unmentioned keys keep base values")

	got, err = ParseSettings("", base)
	require.NoError(t, err)
	assert.Equal(t, base, got)
}

func TestParseSettings_Errors(t *testing.T) {
	for _, s := range []string{"port", "baudRate:fast", "baudRate:0", "comPort:COM1", "dataBits:x", "speed:9600", "port:"} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseSettings(s, defaultSettings())
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestSettings_Mode(t *testing.T) {
	mode, err := Settings{BaudRate: 9600, Parity: "none", DataBits: 8, StopBits: "One"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 9600, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}, mode)

	mode, err = Settings{BaudRate: 19200, Parity: "Mark", StopBits: "OnePointFive"}.Mode()
	require.NoError(t, err)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.MarkParity, mode.Parity)
	assert.Equal(t, serial.OnePointFiveStopBits, mode.StopBits)

	bad := []Settings{
		{BaudRate: 9600, Parity: "sometimes"},
		{BaudRate: 9600, StopBits: "None"},
		{BaudRate: 9600, DataBits: 9},
		{BaudRate: 0},
	}
	for _, s := range bad {
		_, err := s.Mode()
		assert.ErrorIs(t, err, ErrInvalidSettings, "%+v", s)
	}
}

func TestSettings_StringRoundTrip(t *testing.T) {
	s := Settings{Port: "/dev/ttyS0", BaudRate: 57600, Parity: "Odd", DataBits: 8, StopBits: "One"}
	got, err := ParseSettings(s.String(), Settings{})
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestPiper_WriteFramesData(t *testing.T) {
	op := &fakeOpener{}
	p := NewPiper(op.open, []byte{0x02}, []byte{0x03, 0x0D})

	_, err := p.Write([]byte{0x01})
	assert.ErrorIs(t, err, ErrNotOpen)

	s := defaultSettings()
	s.Port = "/dev/ttyUSB0"
	require.NoError(t, p.Open(s))
	assert.True(t, p.IsOpen())
	assert.Equal(t, []string{"/dev/ttyUSB0"}, op.names)

	frame, err := p.Write([]byte{0x0A, 0x0B})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x0A, 0x0B, 0x03, 0x0D}, frame)
	assert.Equal(t, frame, op.ports[0].buf.Bytes())
}

func TestPiper_ShortWritesComplete(t *testing.T) {
	op := &fakeOpener{}
	p := NewPiper(op.open, []byte{0xAA}, []byte{0xBB})
	require.NoError(t, p.Open(Settings{Port: "p", BaudRate: 9600}))
	op.ports[0].chunk = 1

	_, err := p.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 1, 2, 3, 0xBB}, op.ports[0].buf.Bytes())
}

func TestPiper_WriteError(t *testing.T) {
	op := &fakeOpener{}
	p := NewPiper(op.open, nil, nil)
	require.NoError(t, p.Open(Settings{Port: "p", BaudRate: 9600}))
	op.ports[0].writeErr = errors.New("unplugged")

	_, err := p.Write([]byte{1})
	assert.ErrorContains(t, err, "unplugged")
}

func TestPiper_Delimiters(t *testing.T) {
	p := NewPiper(nil, nil, nil)
	assert.Equal(t, []byte{7}, p.Frame([]byte{7}))

	stx := []byte{0x02, 0x0A}
	p.SetSTX(stx)
	p.SetETX([]byte{0x03})
	stx[0] = 0xFF

	gotSTX, gotETX := p.Delimiters()
	assert.Equal(t, []byte{0x02, 0x0A}, gotSTX, "SetSTX copies its argument")
	assert.Equal(t, []byte{0x03}, gotETX)
	assert.Equal(t, []byte{0x02, 0x0A, 0x07, 0x03}, p.Frame([]byte{7}))
}

func TestPiper_OpenReplacesAndClose(t *testing.T) {
	op := &fakeOpener{}
	p := NewPiper(op.open, nil, nil)

	require.NoError(t, p.Open(Settings{Port: "a", BaudRate: 9600}))
	require.NoError(t, p.Open(Settings{Port: "b", BaudRate: 9600}))
	assert.True(t, op.ports[0].closed, "first port closed when reopening")
	assert.Equal(t, "b", p.Settings().Port)

	require.NoError(t, p.Close())
	assert.True(t, op.ports[1].closed)
	assert.False(t, p.IsOpen())
	assert.NoError(t, p.Close(), "closing a closed piper is fine")
}

func TestPiper_OpenErrors(t *testing.T) {
	op := &fakeOpener{err: errors.New("permission denied")}
	p := NewPiper(op.open, nil, nil)

	assert.ErrorIs(t, p.Open(Settings{BaudRate: 9600}), ErrNoPort)
	assert.ErrorIs(t, p.Open(Settings{Port: "a", BaudRate: 9600, Parity: "bogus"}), ErrInvalidSettings)
	assert.ErrorContains(t, p.Open(Settings{Port: "a", BaudRate: 9600}), "permission denied")
	assert.False(t, p.IsOpen())
}
