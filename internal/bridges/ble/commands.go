package ble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/bluerial/internal/protocol"
)

// CommandKind identifies a ble-* command.
type CommandKind int

// Command kinds.
const (
	CommandStart CommandKind = iota + 1
	CommandStop
	CommandDevices
	CommandClear
	CommandAdd
	CommandFilters
	CommandTimeout
)

var commandVerbs = map[string]CommandKind{
	"start":   CommandStart,
	"stop":    CommandStop,
	"devices": CommandDevices,
	"clear":   CommandClear,
	"add":     CommandAdd,
	"filters": CommandFilters,
	"timeout": CommandTimeout,
}

// String returns the command verb.
func (k CommandKind) String() string {
	for verb, kind := range commandVerbs {
		if kind == k {
			return verb
		}
	}
	return "unknown"
}

// Command is a parsed ble-* command.
type Command struct {
	Kind CommandKind

	// Filter is set for CommandAdd.
	Filter string

	// Seconds is set for CommandTimeout.
	Seconds int
}

// ParseCommand decodes one ble-* message.
//
// Parameters:
//   - raw: Message text as received from the consumer topic
//
// Returns:
//   - Command: The typed command
//   - error: protocol errors, ErrWrongNamespace, ErrUnknownCommand or ErrInvalidPayload
func ParseCommand(raw string) (Command, error) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		return Command{}, err
	}
	if msg.Namespace != protocol.NamespaceBLE {
		return Command{}, fmt.Errorf("%w: %q", ErrWrongNamespace, msg.Namespace)
	}

	kind, ok := commandVerbs[msg.Verb]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Verb)
	}

	cmd := Command{Kind: kind}
	switch kind {
	case CommandAdd:
		cmd.Filter = strings.TrimSpace(msg.Payload)
		if cmd.Filter == "" {
			return Command{}, fmt.Errorf("%w: add requires a filter", ErrInvalidPayload)
		}
	case CommandTimeout:
		n, err := strconv.Atoi(strings.TrimSpace(msg.Payload))
		if err != nil || n <= 0 {
			return Command{}, fmt.Errorf("%w: timeout requires positive seconds, got %q", ErrInvalidPayload, msg.Payload)
		}
		cmd.Seconds = n
	}
	return cmd, nil
}
