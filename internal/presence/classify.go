package presence

// EventType names a presence notification.
type EventType int

const (
	// EventStarted fires once per Stopped → Listening transition.
	EventStarted EventType = iota + 1

	// EventStopped fires once per Listening → Stopped transition.
	EventStopped

	// EventDiscovered fires on every successful merge.
	EventDiscovered

	// EventNewDiscovery fires on the first merge for a key.
	EventNewDiscovery

	// EventNameChanged fires when a known device reports a different name.
	EventNameChanged

	// EventDataChanged fires when a known device's vendor payload changes.
	EventDataChanged

	// EventTimedOut fires when a device is evicted for silence.
	EventTimedOut
)

var eventNames = map[EventType]string{
	EventStarted:      "started",
	EventStopped:      "stopped",
	EventDiscovered:   "discovered",
	EventNewDiscovery: "new_discovery",
	EventNameChanged:  "name_changed",
	EventDataChanged:  "data_changed",
	EventTimedOut:     "timed_out",
}

// String returns the snake_case event name.
func (t EventType) String() string {
	if s, ok := eventNames[t]; ok {
		return s
	}
	return "unknown"
}

// Classify maps a merge outcome to the events it produces, in firing order:
// Discovered always, then DataChanged, NameChanged and NewDiscovery.
func Classify(res MergeResult) []EventType {
	events := make([]EventType, 1, 4)
	events[0] = EventDiscovered
	if res.DataChanged {
		events = append(events, EventDataChanged)
	}
	if res.NameChanged {
		events = append(events, EventNameChanged)
	}
	if res.IsNew {
		events = append(events, EventNewDiscovery)
	}
	return events
}
