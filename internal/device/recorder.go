package device

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// RecordedEvents are the presence events the Recorder journals.
// Discovered is left out; it fires on every advertisement.
var RecordedEvents = []presence.EventType{
	presence.EventNewDiscovery,
	presence.EventNameChanged,
	presence.EventDataChanged,
	presence.EventTimedOut,
}

const (
	defaultRecorderQueue = 256
	recordTimeout        = 5 * time.Second
)

// Recorder writes presence events to a SightingRepository from a bounded
// queue on its own goroutine.
//
// Thread Safety: All methods are safe for concurrent use.
type Recorder struct {
	repo  SightingRepository
	queue chan Sighting

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	recorded atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRecorder creates a stopped Recorder. queueSize <= 0 uses 256.
func NewRecorder(repo SightingRepository, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultRecorderQueue
	}
	return &Recorder{
		repo:   repo,
		queue:  make(chan Sighting, queueSize),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the recorder.
func (r *Recorder) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Recorder) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// Start launches the write loop. Safe to call multiple times.
func (r *Recorder) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Stop writes whatever is queued and waits for the write loop to exit.
// Events handled after Stop are discarded. Safe to call multiple times.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.getLogger().Info("sighting recorder stopped",
			"recorded", r.recorded.Load(), "dropped", r.dropped.Load())
	})
}

// Handle is a watcher.Handler. It never blocks: when the queue is full
// the event is dropped with a warning.
func (r *Recorder) Handle(ev watcher.Event) {
	if !isRecorded(ev.Type) {
		return
	}
	select {
	case <-r.done:
		return
	default:
	}

	s := Sighting{
		DeviceKey: ev.Record.Key.String(),
		Event:     ev.Type.String(),
		Record:    ev.Record,
		SeenAt:    ev.Time,
	}
	select {
	case r.queue <- s:
	default:
		r.dropped.Add(1)
		r.getLogger().Warn("sighting queue full, dropping event",
			"device", s.DeviceKey, "event", s.Event)
	}
}

// Stats returns how many sightings were written, dropped and failed.
func (r *Recorder) Stats() (recorded, dropped, failed uint64) {
	return r.recorded.Load(), r.dropped.Load(), r.failed.Load()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case s := <-r.queue:
			r.write(s)
		case <-r.done:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case s := <-r.queue:
			r.write(s)
		default:
			return
		}
	}
}

func (r *Recorder) write(s Sighting) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.RecordSighting(ctx, &s); err != nil {
		r.failed.Add(1)
		r.getLogger().Error("recording sighting failed", "device", s.DeviceKey, "event", s.Event, "error", err)
		return
	}
	r.recorded.Add(1)
}

func isRecorded(t presence.EventType) bool {
	for _, rt := range RecordedEvents {
		if rt == t {
			return true
		}
	}
	return false
}
