package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bluerial/internal/presence"
)

const waitFor = 2 * time.Second

// fakeSource records lifecycle calls and lets tests push advertisements.
type fakeSource struct {
	mu         sync.Mutex
	handle     func(presence.Advertisement)
	lastHandle func(presence.Advertisement)
	fail       func(error)
	starts     int
	stops      int
	startErr   error
	stopErr    error
}

func (f *fakeSource) Start(handle func(presence.Advertisement), fail func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.handle = handle
	f.lastHandle = handle
	f.fail = fail
	f.starts++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handle = nil
	f.stops++
	return f.stopErr
}

// emit delivers adv if the source is running.
func (f *fakeSource) emit(adv presence.Advertisement) {
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	if h != nil {
		h(adv)
	}
}

// emitLate delivers adv through the most recent handler even after Stop,
// like a radio callback already in flight.
func (f *fakeSource) emitLate(adv presence.Advertisement) {
	f.mu.Lock()
	h := f.lastHandle
	f.mu.Unlock()
	h(adv)
}

func (f *fakeSource) failWith(err error) {
	f.mu.Lock()
	fail := f.fail
	f.handle = nil
	f.mu.Unlock()
	fail(err)
}

func (f *fakeSource) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// fakeEnricher answers from a fixed table.
type fakeEnricher struct {
	mu      sync.Mutex
	known   map[uint64]Enrichment
	failAll bool
	calls   int
}

func (e *fakeEnricher) Resolve(ctx context.Context, address uint64) (Enrichment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.failAll {
		return Enrichment{}, errors.New("gatt read timed out")
	}
	if info, ok := e.known[address]; ok {
		return info, nil
	}
	return Enrichment{}, ErrNotFound
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) types() []presence.EventType {
	evs := r.all()
	out := make([]presence.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) count(t presence.EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) waitLen(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.all()) >= n }, waitFor, time.Millisecond,
		"waiting for %d events, have %v", n, r.types())
}

func (r *recorder) waitType(t *testing.T, typ presence.EventType) {
	t.Helper()
	require.Eventually(t, func() bool { return r.count(typ) > 0 }, waitFor, time.Millisecond,
		"waiting for %s, have %v", typ, r.types())
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// newTestWatcher builds a watcher on a fake source and clock with a
// recorder subscribed to every event.
func newTestWatcher(t *testing.T, opts Options) (*Watcher, *fakeSource, *fakeClock, *recorder) {
	t.Helper()
	src := &fakeSource{}
	clock := newFakeClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	w, err := New(src, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	rec := &recorder{}
	w.Subscribe(rec.handle)
	return w, src, clock, rec
}

func adv(clock *fakeClock, addr uint64, name string, rssi int16) presence.Advertisement {
	return presence.Advertisement{
		Address:   addr,
		Timestamp: clock.Now(),
		RSSI:      rssi,
		LocalName: name,
	}
}
