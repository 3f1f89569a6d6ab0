package uart

import (
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
)

// Settings describes how to open a port.
type Settings struct {
	Port     string
	BaudRate int
	Parity   string
	DataBits int
	StopBits string
}

// SettingsFromConfig returns the configured default settings.
func SettingsFromConfig(cfg config.SerialConfig) Settings {
	return Settings{
		Port:     cfg.Port,
		BaudRate: cfg.BaudRate,
		Parity:   cfg.Parity,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
	}
}

// ParseSettings applies a "key:value,key:value" list on top of base.
// Spaces are ignored. Unknown keys are rejected.
//
// Parameters:
//   - s: Settings text, e.g. "port:/dev/ttyUSB0,baudRate:9600"
//   - base: Values for keys the text does not mention
//
// Returns:
//   - Settings: The merged settings
//   - error: ErrInvalidSettings describing the first bad entry
func ParseSettings(s string, base Settings) (Settings, error) {
	out := base
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return out, nil
	}

	for _, arg := range strings.Split(s, ",") {
		if arg == "" {
			continue
		}
		key, value, ok := strings.Cut(arg, ":")
		if !ok || value == "" {
			return Settings{}, fmt.Errorf("%w: %q", ErrInvalidSettings, arg)
		}

		switch strings.ToLower(key) {
		case "port":
			out.Port = value
		case "comport":
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return Settings{}, fmt.Errorf("%w: comPort %q", ErrInvalidSettings, value)
			}
			out.Port = fmt.Sprintf("COM%d", n)
		case "baudrate":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return Settings{}, fmt.Errorf("%w: baudRate %q", ErrInvalidSettings, value)
			}
			out.BaudRate = n
		case "parity":
			out.Parity = value
		case "databits":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Settings{}, fmt.Errorf("%w: dataBits %q", ErrInvalidSettings, value)
			}
			out.DataBits = n
		case "stopbits":
			out.StopBits = value
		default:
			return Settings{}, fmt.Errorf("%w: unknown key %q", ErrInvalidSettings, key)
		}
	}
	return out, nil
}

// Mode converts the settings to a go.bug.st/serial mode.
func (s Settings) Mode() (*serial.Mode, error) {
	parity, err := parseParity(s.Parity)
	if err != nil {
		return nil, err
	}
	stop, err := parseStopBits(s.StopBits)
	if err != nil {
		return nil, err
	}
	if s.DataBits != 0 && (s.DataBits < 5 || s.DataBits > 8) {
		return nil, fmt.Errorf("%w: dataBits %d", ErrInvalidSettings, s.DataBits)
	}
	if s.BaudRate <= 0 {
		return nil, fmt.Errorf("%w: baudRate %d", ErrInvalidSettings, s.BaudRate)
	}

	dataBits := s.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	return &serial.Mode{
		BaudRate: s.BaudRate,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stop,
	}, nil
}

// String renders the settings in ParseSettings form.
func (s Settings) String() string {
	return fmt.Sprintf("port:%s,baudRate:%d,parity:%s,dataBits:%d,stopBits:%s",
		s.Port, s.BaudRate, s.Parity, s.DataBits, s.StopBits)
}

func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return serial.NoParity, nil
	case "odd":
		return serial.OddParity, nil
	case "even":
		return serial.EvenParity, nil
	case "mark":
		return serial.MarkParity, nil
	case "space":
		return serial.SpaceParity, nil
	}
	return serial.NoParity, fmt.Errorf("%w: parity %q", ErrInvalidSettings, s)
}

func parseStopBits(s string) (serial.StopBits, error) {
	switch strings.ToLower(s) {
	case "", "one", "1":
		return serial.OneStopBit, nil
	case "onepointfive", "1.5":
		return serial.OnePointFiveStopBits, nil
	case "two", "2":
		return serial.TwoStopBits, nil
	}
	return serial.OneStopBit, fmt.Errorf("%w: stopBits %q", ErrInvalidSettings, s)
}
