package ble

import (
	"strings"

	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/protocol"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// Notification verbs.
const (
	verbScanStarted = "scan-started"
	verbScanStopped = "scan-stopped"
	verbDevices     = "devices"
	verbMessage     = "message"
	verbFilters     = "filters"
)

func scanStartedMessage() protocol.Message {
	return protocol.New(protocol.NamespaceBLE, verbScanStarted)
}

// scanStoppedMessage carries the failure reason when the radio stopped on its own.
func scanStoppedMessage(cause error) protocol.Message {
	if cause != nil {
		return protocol.WithPayload(protocol.NamespaceBLE, verbScanStopped, cause.Error())
	}
	return protocol.New(protocol.NamespaceBLE, verbScanStopped)
}

func devicesMessage(records []presence.Record) protocol.Message {
	var b strings.Builder
	b.WriteByte('\n')
	for _, r := range records {
		b.WriteByte('\t')
		b.WriteString(r.Describe())
		b.WriteString("\n\n")
	}
	return protocol.WithPayload(protocol.NamespaceBLE, verbDevices, b.String())
}

func filtersMessage(filters []string) protocol.Message {
	var b strings.Builder
	for _, f := range filters {
		b.WriteString("Filter: ")
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return protocol.WithPayload(protocol.NamespaceBLE, verbFilters, b.String())
}

// deviceMessage formats a per-device event. ok is false for event types
// that are not published.
func deviceMessage(ev watcher.Event) (msg protocol.Message, ok bool) {
	var prefix string
	switch ev.Type {
	case presence.EventNewDiscovery:
		prefix = "New device: "
	case presence.EventNameChanged:
		prefix = "Device name changed: "
	case presence.EventDataChanged:
		prefix = "Device data changed: "
	case presence.EventTimedOut:
		prefix = "Device timeout: "
	default:
		return protocol.Message{}, false
	}
	return protocol.WithPayload(protocol.NamespaceBLE, verbMessage, prefix+ev.Record.String()), true
}
