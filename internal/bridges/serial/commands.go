package serial

import (
	"fmt"

	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/uart"
)

// CommandKind identifies a serial-* command.
type CommandKind int

// Command kinds.
const (
	CommandOpen CommandKind = iota + 1
	CommandClose
	CommandSTX
	CommandETX
	CommandMessage
)

// Command is a parsed serial-* command.
type Command struct {
	Kind CommandKind

	// Settings is set for CommandOpen.
	Settings uart.Settings

	// Bytes is set for CommandSTX, CommandETX and CommandMessage.
	Bytes []byte
}

// ParseCommand decodes one serial-* message. Open settings are applied on
// top of defaults.
func ParseCommand(raw string, defaults uart.Settings) (Command, error) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		return Command{}, err
	}
	if msg.Namespace != protocol.NamespaceSerial {
		return Command{}, fmt.Errorf("%w: %q", ErrWrongNamespace, msg.Namespace)
	}

	switch msg.Verb {
	case "open":
		s, err := uart.ParseSettings(msg.Payload, defaults)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		return Command{Kind: CommandOpen, Settings: s}, nil
	case "close":
		return Command{Kind: CommandClose}, nil
	case "stx":
		return hexCommand(CommandSTX, msg.Payload)
	case "etx":
		return hexCommand(CommandETX, msg.Payload)
	case "message":
		cmd, err := hexCommand(CommandMessage, msg.Payload)
		if err == nil && len(cmd.Bytes) == 0 {
			return Command{}, fmt.Errorf("%w: message requires data", ErrInvalidPayload)
		}
		return cmd, err
	}
	return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Verb)
}

func hexCommand(kind CommandKind, payload string) (Command, error) {
	b, err := protocol.ParseHexBytes(payload)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return Command{Kind: kind, Bytes: b}, nil
}
