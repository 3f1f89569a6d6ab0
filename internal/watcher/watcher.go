package watcher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
)

// Keying selects how advertisements are mapped to device keys.
type Keying string

// Keying schemes.
const (
	// KeyByAddress keys every device by its radio address.
	KeyByAddress Keying = "address"

	// KeyByStableID keys devices by their enriched stable identity, falling
	// back to the radio address until one is known.
	KeyByStableID Keying = "stable_id"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultSweepInterval    = 5 * time.Second
	DefaultEnrichTimeout    = 500 * time.Millisecond
	DefaultEnrichCacheTTL   = time.Minute
	DefaultEnrichWorkers    = 2
	DefaultEnrichQueueSize  = 64
)

// Options configures a Watcher.
type Options struct {
	// Keying is fixed for the watcher's lifetime. Default: KeyByAddress.
	Keying Keying

	HeartbeatTimeout time.Duration
	SweepInterval    time.Duration

	// Enricher is optional. When nil, no lookups are made.
	Enricher        Enricher
	EnrichTimeout   time.Duration
	EnrichCacheTTL  time.Duration
	EnrichWorkers   int
	EnrichQueueSize int

	// Logger is optional structured logger.
	Logger Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Stats is a point-in-time view of watcher counters.
type Stats struct {
	Listening      bool
	Devices        int
	Advertisements uint64
	Merges         uint64
	Invalid        uint64
	Dropped        uint64
	Evictions      uint64
	Rekeys         uint64
	EnrichHits     uint64
	EnrichMisses   uint64
	EnrichFailures uint64
	EnrichDropped  uint64
}

type counters struct {
	advertisements atomic.Uint64
	merges         atomic.Uint64
	invalid        atomic.Uint64
	dropped        atomic.Uint64
	evictions      atomic.Uint64
	rekeys         atomic.Uint64
	enrichHits     atomic.Uint64
	enrichMisses   atomic.Uint64
	enrichFailures atomic.Uint64
	enrichDropped  atomic.Uint64
}

// Watcher binds a radio Source to a presence Store.
//
// Thread Safety: All methods are safe for concurrent use.
type Watcher struct {
	source Source
	store  *presence.Store
	keying Keying
	now    func() time.Time

	heartbeat     atomic.Int64 // nanoseconds
	sweepInterval time.Duration

	// lifecycleMu serialises Start, Stop and failure handling.
	lifecycleMu sync.Mutex
	generation  uint64
	closed      bool

	// gate guards listening. Merges hold it for reading for their whole
	// duration, so once Stop holds it for writing no merge is in flight.
	gate      sync.RWMutex
	listening bool

	// emitMu keeps store mutations and their enqueued events in one order.
	emitMu sync.Mutex

	sweepStop chan struct{}
	sweepDone chan struct{}

	enrich *enricher
	disp   *dispatcher
	stats  counters

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Watcher in the Stopped state. Call Start to begin listening.
//
// Parameters:
//   - source: Radio source to listen to
//   - opts: Keying, timeouts and optional enrichment
//
// Returns:
//   - *Watcher: Stopped watcher
//   - error: ErrNilSource or ErrInvalidKeying
func New(source Source, opts Options) (*Watcher, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	switch opts.Keying {
	case "":
		opts.Keying = KeyByAddress
	case KeyByAddress, KeyByStableID:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKeying, opts.Keying)
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	w := &Watcher{
		source:        source,
		store:         presence.NewStore(),
		keying:        opts.Keying,
		now:           opts.Now,
		sweepInterval: opts.SweepInterval,
		logger:        opts.Logger,
	}
	w.heartbeat.Store(int64(opts.HeartbeatTimeout))
	w.disp = newDispatcher(func(msg string, args ...any) { w.getLogger().Error(msg, args...) })

	if opts.Enricher != nil {
		w.enrich = &enricher{
			resolver:  opts.Enricher,
			timeout:   orDuration(opts.EnrichTimeout, DefaultEnrichTimeout),
			ttl:       orDuration(opts.EnrichCacheTTL, DefaultEnrichCacheTTL),
			workers:   orInt(opts.EnrichWorkers, DefaultEnrichWorkers),
			queueSize: orInt(opts.EnrichQueueSize, DefaultEnrichQueueSize),
			now:       opts.Now,
			stats:     &w.stats,
			logger:    w.getLogger,
		}
	}

	return w, nil
}

// SetLogger sets the logger for the watcher.
func (w *Watcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	w.loggerMu.Lock()
	w.logger = logger
	w.loggerMu.Unlock()
}

func (w *Watcher) getLogger() Logger {
	w.loggerMu.RLock()
	defer w.loggerMu.RUnlock()
	return w.logger
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start begins listening. Starting while already listening is a no-op.
//
// Returns:
//   - error: ErrClosed, or the source's start error (the watcher stays Stopped)
func (w *Watcher) Start() error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.IsListening() {
		return nil
	}

	gen := w.generation + 1
	if w.enrich != nil {
		w.enrich.start()
	}

	fail := func(err error) {
		go w.sourceFailed(gen, err)
	}
	if err := w.source.Start(w.HandleAdvertisement, fail); err != nil {
		if w.enrich != nil {
			w.enrich.stop()
		}
		return fmt.Errorf("starting source: %w", err)
	}
	w.generation = gen

	// Started is queued before the gate opens, so it precedes every
	// discovery of this session.
	w.gate.Lock()
	w.listening = true
	w.disp.enqueue(Event{Type: presence.EventStarted, Time: w.now()})
	w.gate.Unlock()

	w.sweepStop = make(chan struct{})
	w.sweepDone = make(chan struct{})
	go w.sweepLoop(w.sweepStop, w.sweepDone)

	w.getLogger().Info("listening started", "keying", string(w.keying), "heartbeat_timeout", w.HeartbeatTimeout())
	return nil
}

// Stop ends listening and clears every record. Stopping while already
// stopped is a no-op.
//
// Returns:
//   - error: The source's stop error, after the watcher has fully stopped
func (w *Watcher) Stop() error {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	return w.stopLocked(nil, true)
}

// sourceFailed handles a spontaneous end of scanning for session gen.
func (w *Watcher) sourceFailed(gen uint64, cause error) {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if gen != w.generation {
		return
	}
	if cause == nil {
		cause = fmt.Errorf("source stopped unexpectedly")
	}
	w.getLogger().Warn("radio source failed", "error", cause)
	_ = w.stopLocked(cause, false)
}

// stopLocked performs the Listening → Stopped transition.
// Caller holds lifecycleMu.
func (w *Watcher) stopLocked(cause error, stopSource bool) error {
	w.gate.Lock()
	if !w.listening {
		w.gate.Unlock()
		return nil
	}
	w.listening = false
	w.gate.Unlock()

	close(w.sweepStop)
	<-w.sweepDone

	var srcErr error
	if stopSource {
		if err := w.source.Stop(); err != nil {
			srcErr = fmt.Errorf("stopping source: %w", err)
			w.getLogger().Warn("radio source stop failed", "error", err)
		}
	}

	if w.enrich != nil {
		w.enrich.stop()
	}

	w.emitMu.Lock()
	cleared := w.store.Clear()
	w.disp.enqueue(Event{Type: presence.EventStopped, Time: w.now(), Err: cause})
	w.emitMu.Unlock()

	w.getLogger().Info("listening stopped", "cleared", cleared)
	return srcErr
}

// Close stops the watcher and delivers every queued event. The watcher
// cannot be restarted. Must not be called from an event handler.
func (w *Watcher) Close() error {
	w.lifecycleMu.Lock()
	err := w.stopLocked(nil, true)
	w.closed = true
	w.lifecycleMu.Unlock()

	w.disp.close()
	return err
}

// =============================================================================
// Merge path
// =============================================================================

// HandleAdvertisement merges one raw advertisement. It is the callback
// handed to the Source and may be called from any goroutine.
func (w *Watcher) HandleAdvertisement(adv presence.Advertisement) {
	w.stats.advertisements.Add(1)

	if err := adv.Validate(); err != nil {
		w.stats.invalid.Add(1)
		w.getLogger().Debug("dropping advertisement", "error", err)
		return
	}

	w.gate.RLock()
	defer w.gate.RUnlock()

	if !w.listening {
		w.stats.dropped.Add(1)
		return
	}

	key, obs := w.observe(adv)
	now := w.now()
	timeout := w.HeartbeatTimeout()

	w.emitMu.Lock()
	defer w.emitMu.Unlock()

	w.emitEvicted(w.store.EvictStale(now, timeout), now)

	// Under stable keying a device first heard before its lookup finished
	// sits under its address key until the stable key takes it over.
	res := w.store.MergeFrom(key, presence.AddressKey(adv.Address), obs)
	w.stats.merges.Add(1)
	if res.Moved {
		w.stats.rekeys.Add(1)
		w.getLogger().Debug("device rekeyed", "address", presence.FormatAddress(adv.Address), "key", key.String())
	}

	types := presence.Classify(res)
	events := make([]Event, len(types))
	for i, t := range types {
		events[i] = Event{Type: t, Record: res.Record, Time: now}
	}
	w.disp.enqueue(events...)
}

// observe derives the device key and merge input for adv, folding in any
// cached enrichment.
func (w *Watcher) observe(adv presence.Advertisement) (presence.DeviceKey, presence.Observation) {
	obs := presence.ObservationFrom(adv)
	key := presence.AddressKey(adv.Address)

	if w.enrich == nil {
		return key, obs
	}

	info, ok := w.enrich.lookup(adv.Address)
	if !ok {
		return key, obs
	}

	if w.keying == KeyByStableID && info.StableID != "" {
		key = presence.StableKey(info.StableID)
	}
	if obs.Name == "" && info.Name != "" {
		obs.Name = info.Name
	}
	conn := info.Connection
	obs.Connection = &conn
	return key, obs
}

// emitEvicted queues timed-out events. Caller holds emitMu.
func (w *Watcher) emitEvicted(evicted []presence.Record, now time.Time) {
	if len(evicted) == 0 {
		return
	}
	w.stats.evictions.Add(uint64(len(evicted)))

	events := make([]Event, len(evicted))
	for i, r := range evicted {
		events[i] = Event{Type: presence.EventTimedOut, Record: r, Time: now}
	}
	w.disp.enqueue(events...)
}

// =============================================================================
// Sweeping
// =============================================================================

func (w *Watcher) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep evicts stale records if listening.
func (w *Watcher) sweep() {
	w.gate.RLock()
	defer w.gate.RUnlock()

	if !w.listening {
		return
	}

	now := w.now()
	w.emitMu.Lock()
	w.emitEvicted(w.store.EvictStale(now, w.HeartbeatTimeout()), now)
	w.emitMu.Unlock()
}

// =============================================================================
// Queries
// =============================================================================

// IsListening reports whether the watcher is in the Listening state.
func (w *Watcher) IsListening() bool {
	w.gate.RLock()
	defer w.gate.RUnlock()
	return w.listening
}

// Snapshot returns copies of all current records, ordered by key. Stale
// records are evicted first while listening.
func (w *Watcher) Snapshot() []presence.Record {
	w.sweep()
	return w.store.Snapshot()
}

// Get returns a copy of the record for key.
func (w *Watcher) Get(key presence.DeviceKey) (presence.Record, bool) {
	return w.store.Get(key)
}

// HeartbeatTimeout returns the current eviction timeout.
func (w *Watcher) HeartbeatTimeout() time.Duration {
	return time.Duration(w.heartbeat.Load())
}

// SetHeartbeatTimeout changes the eviction timeout. It takes effect at the
// next sweep.
//
// Parameters:
//   - seconds: New timeout in seconds, must be positive
//
// Returns:
//   - error: ErrInvalidTimeout for non-positive values
func (w *Watcher) SetHeartbeatTimeout(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeout, seconds)
	}
	w.heartbeat.Store(int64(time.Duration(seconds) * time.Second))
	w.getLogger().Info("heartbeat timeout changed", "seconds", seconds)
	return nil
}

// Subscribe registers h for events of the given types, or for every event
// when no types are given. The returned function unsubscribes.
func (w *Watcher) Subscribe(h Handler, types ...presence.EventType) func() {
	return w.disp.subscribe(h, types)
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Listening:      w.IsListening(),
		Devices:        w.store.Len(),
		Advertisements: w.stats.advertisements.Load(),
		Merges:         w.stats.merges.Load(),
		Invalid:        w.stats.invalid.Load(),
		Dropped:        w.stats.dropped.Load(),
		Evictions:      w.stats.evictions.Load(),
		Rekeys:         w.stats.rekeys.Load(),
		EnrichHits:     w.stats.enrichHits.Load(),
		EnrichMisses:   w.stats.enrichMisses.Load(),
		EnrichFailures: w.stats.enrichFailures.Load(),
		EnrichDropped:  w.stats.enrichDropped.Load(),
	}
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
