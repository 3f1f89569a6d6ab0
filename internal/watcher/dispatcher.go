package watcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/bluerial/internal/presence"
)

// subscription is one registered handler with its optional type filter.
type subscription struct {
	id      uint64
	handler Handler
	types   map[presence.EventType]bool
}

func (s subscription) accepts(t presence.EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// dispatcher delivers events to subscribers in production order from a
// single goroutine. enqueue never blocks.
type dispatcher struct {
	mu     sync.Mutex
	queue  []Event
	signal chan struct{}

	subsMu sync.RWMutex
	subs   map[uint64]subscription
	nextID uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	logf func(msg string, args ...any)
}

func newDispatcher(logf func(string, ...any)) *dispatcher {
	d := &dispatcher{
		signal: make(chan struct{}, 1),
		subs:   make(map[uint64]subscription),
		done:   make(chan struct{}),
		logf:   logf,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

// subscribe registers h and returns a function that removes it.
func (d *dispatcher) subscribe(h Handler, types []presence.EventType) func() {
	sub := subscription{handler: h}
	if len(types) > 0 {
		sub.types = make(map[presence.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	d.subsMu.Lock()
	d.nextID++
	sub.id = d.nextID
	d.subs[sub.id] = sub
	d.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.subsMu.Lock()
			delete(d.subs, sub.id)
			d.subsMu.Unlock()
		})
	}
}

func (d *dispatcher) enqueue(events ...Event) {
	if len(events) == 0 {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, events...)
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case <-d.signal:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

// drain delivers queued events until the queue is empty.
func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		d.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			d.deliver(ev)
		}
	}
}

func (d *dispatcher) deliver(ev Event) {
	d.subsMu.RLock()
	subs := make([]subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	d.subsMu.RUnlock()

	// Registration order.
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, s := range subs {
		if s.accepts(ev.Type) {
			d.call(s, ev)
		}
	}
}

// call invokes a handler, recovering from panics so one bad subscriber
// cannot take down delivery for the rest.
func (d *dispatcher) call(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logf("event handler panicked",
				"subscription", s.id,
				"event", ev.Type.String(),
				"panic", fmt.Sprint(r))
		}
	}()
	s.handler(ev)
}

// close delivers everything already queued and stops the goroutine.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.wg.Wait()
	})
}
