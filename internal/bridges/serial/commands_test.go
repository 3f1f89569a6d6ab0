package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/uart"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		raw  string
		want Command
	}{
		{"serial-open", Command{Kind: CommandOpen, Settings: testDefaults}},
		{"SERIAL-OPEN-###comPort:3, baudRate:19200", Command{Kind: CommandOpen, Settings: uart.Settings{
			Port: "COM3", BaudRate: 19200, Parity: "None", DataBits: 8, StopBits: "One",
		}}},
		{"serial-close", Command{Kind: CommandClose}},
		{"serial-stx-###02", Command{Kind: CommandSTX, Bytes: []byte{0x02}}},
		{"serial-etx-###", Command{Kind: CommandETX}},
		{"serial-message-###0A,0b,ff", Command{Kind: CommandMessage, Bytes: []byte{0x0A, 0x0B, 0xFF}}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCommand(tt.raw, testDefaults)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{"", protocol.ErrEmpty},
		{"ble-start", ErrWrongNamespace},
		{"serial-flush", ErrUnknownCommand},
		{"serial-open-###speed:9600", ErrInvalidPayload},
		{"serial-stx-###1FF", ErrInvalidPayload},
		{"serial-message", ErrInvalidPayload},
		{"serial-message-###", ErrInvalidPayload},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseCommand(tt.raw, testDefaults)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
