package watcher

import (
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
)

// Event is one presence notification.
type Event struct {
	Type presence.EventType

	// Record is the device the event is about. Zero for started/stopped.
	Record presence.Record

	// Time is when the watcher produced the event.
	Time time.Time

	// Err is set on EventStopped when the radio source failed on its own.
	Err error
}

// Handler receives events. It runs on the dispatcher goroutine.
type Handler func(Event)
