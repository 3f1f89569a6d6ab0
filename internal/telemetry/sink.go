package telemetry

import (
	"sync"
	"time"

	"github.com/nerrad567/bluerial/internal/infrastructure/influxdb"
	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// MeasurementScanner holds one point per scanner start or stop.
const MeasurementScanner = "ble_scanner"

// Writer is the point-writing side of the InfluxDB client.
// *influxdb.Client satisfies it.
type Writer interface {
	WriteRSSI(deviceKey, address, name string, rssi int, vendorID uint16, at time.Time)
	WritePresence(deviceKey, event, name string, at time.Time)
	WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time)
}

var _ Writer = (*influxdb.Client)(nil)

// Options configures a Sink.
type Options struct {
	// RSSIInterval is the minimum gap between two ble_rssi points for the
	// same device. Zero writes every advertisement.
	RSSIInterval time.Duration
}

// Sink writes watcher events as telemetry points.
//
// Thread Safety: Handle is safe for concurrent use.
type Sink struct {
	w            Writer
	rssiInterval time.Duration

	mu        sync.Mutex
	lastRSSI  map[presence.DeviceKey]time.Time
	written   uint64
	throttled uint64
}

// NewSink creates a Sink writing to w.
func NewSink(w Writer, opts Options) *Sink {
	return &Sink{
		w:            w,
		rssiInterval: opts.RSSIInterval,
		lastRSSI:     make(map[presence.DeviceKey]time.Time),
	}
}

// Handle is a watcher.Handler.
func (s *Sink) Handle(ev watcher.Event) {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	switch ev.Type {
	case presence.EventDiscovered:
		s.writeRSSI(ev.Record, at)
	case presence.EventNewDiscovery, presence.EventNameChanged, presence.EventDataChanged:
		s.w.WritePresence(ev.Record.Key.String(), ev.Type.String(), ev.Record.DisplayName(), at)
		s.count()
	case presence.EventTimedOut:
		s.w.WritePresence(ev.Record.Key.String(), ev.Type.String(), ev.Record.DisplayName(), at)
		s.mu.Lock()
		delete(s.lastRSSI, ev.Record.Key)
		s.written++
		s.mu.Unlock()
	case presence.EventStarted, presence.EventStopped:
		s.writeScanner(ev, at)
	}
}

// Stats returns how many points were written and how many RSSI points
// were skipped by throttling.
func (s *Sink) Stats() (written, throttled uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written, s.throttled
}

func (s *Sink) writeRSSI(rec presence.Record, at time.Time) {
	s.mu.Lock()
	if s.rssiInterval > 0 {
		if last, ok := s.lastRSSI[rec.Key]; ok && at.Sub(last) < s.rssiInterval {
			s.throttled++
			s.mu.Unlock()
			return
		}
		s.lastRSSI[rec.Key] = at
	}
	s.written++
	s.mu.Unlock()

	s.w.WriteRSSI(
		rec.Key.String(),
		presence.FormatAddress(rec.Address),
		rec.DisplayName(),
		int(rec.RSSI),
		rec.VendorID,
		at,
	)
}

func (s *Sink) writeScanner(ev watcher.Event, at time.Time) {
	listening := 0
	if ev.Type == presence.EventStarted {
		listening = 1
	}
	fields := map[string]any{"listening": listening}
	if ev.Err != nil {
		fields["reason"] = ev.Err.Error()
	}

	// A stop clears the store, so every device starts over.
	if ev.Type == presence.EventStopped {
		s.mu.Lock()
		clear(s.lastRSSI)
		s.mu.Unlock()
	}

	s.w.WritePoint(MeasurementScanner, map[string]string{"event": ev.Type.String()}, fields, at)
	s.count()
}

func (s *Sink) count() {
	s.mu.Lock()
	s.written++
	s.mu.Unlock()
}
