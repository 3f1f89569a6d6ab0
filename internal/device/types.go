package device

import (
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// KnownDevice is one registry entry.
type KnownDevice struct {
	// Address is the 48-bit radio address the entry is looked up by.
	Address uint64

	// StableID survives address rotation. Unique across the registry.
	StableID string

	// Name is used when advertisements carry no local name.
	Name string

	Connection presence.ConnectionState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enrichment returns what the watcher should learn from this entry.
func (d KnownDevice) Enrichment() watcher.Enrichment {
	return watcher.Enrichment{
		StableID:   d.StableID,
		Name:       d.Name,
		Connection: d.Connection,
	}
}

// Sighting is one row of the presence history.
type Sighting struct {
	ID int64 `json:"id"`

	// DeviceKey is the presence key at the time of the event.
	DeviceKey string `json:"device_key"`

	// Event is the presence event name, e.g. "new_discovery".
	Event string `json:"event"`

	// Record is the device snapshot carried by the event.
	Record presence.Record `json:"record"`

	SeenAt time.Time `json:"seen_at"`
}
