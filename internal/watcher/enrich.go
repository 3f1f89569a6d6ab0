package watcher

import (
	"context"
	"errors"
	"sync"
	"time"
)

// cacheEntry is one remembered lookup outcome. found=false entries stop the
// same address being looked up on every advertisement.
type cacheEntry struct {
	result  Enrichment
	found   bool
	expires time.Time
}

// enricher runs Enricher lookups on background workers and caches results
// by address. lookup never blocks.
type enricher struct {
	resolver  Enricher
	timeout   time.Duration
	ttl       time.Duration
	workers   int
	queueSize int
	now       func() time.Time
	stats     *counters
	logger    func() Logger

	mu       sync.Mutex
	cache    map[uint64]cacheEntry
	pending  map[uint64]struct{}
	requests chan uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// start launches the worker pool for one listening session.
func (e *enricher) start() {
	ctx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.cache = make(map[uint64]cacheEntry)
	e.pending = make(map[uint64]struct{})
	e.requests = make(chan uint64, e.queueSize)
	reqs := e.requests
	e.cancel = cancel
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.work(ctx, reqs)
	}
}

// stop cancels in-flight lookups, waits for the workers and forgets every
// cached result.
func (e *enricher) stop() {
	e.mu.Lock()
	cancel := e.cancel
	reqs := e.requests
	e.requests = nil
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	close(reqs)
	e.wg.Wait()

	e.mu.Lock()
	e.cache = nil
	e.pending = nil
	e.mu.Unlock()
}

// lookup returns the cached enrichment for address, queueing a background
// lookup when nothing current is cached. An expired entry is still
// returned while its refresh is pending, so a resolved device keeps its
// stable key instead of dropping back to its address key.
func (e *enricher) lookup(address uint64) (Enrichment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.requests == nil {
		return Enrichment{}, false
	}

	entry, cached := e.cache[address]
	if cached && e.now().Before(entry.expires) {
		if entry.found {
			e.stats.enrichHits.Add(1)
		}
		return entry.result, entry.found
	}

	if _, queued := e.pending[address]; !queued {
		select {
		case e.requests <- address:
			e.pending[address] = struct{}{}
		default:
			e.stats.enrichDropped.Add(1)
		}
	}

	if cached && entry.found {
		e.stats.enrichHits.Add(1)
		return entry.result, true
	}
	return Enrichment{}, false
}

func (e *enricher) work(ctx context.Context, reqs <-chan uint64) {
	defer e.wg.Done()
	for address := range reqs {
		if ctx.Err() != nil {
			return
		}

		rctx, cancel := context.WithTimeout(ctx, e.timeout)
		result, err := e.resolver.Resolve(rctx, address)
		cancel()

		e.record(address, result, err)
	}
}

func (e *enricher) record(address uint64, result Enrichment, err error) {
	found := err == nil
	switch {
	case found:
	case errors.Is(err, ErrNotFound):
		e.stats.enrichMisses.Add(1)
	default:
		e.stats.enrichFailures.Add(1)
		e.logger().Debug("enrichment lookup failed", "address", address, "error", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Stopped while this lookup was in flight.
	if e.requests == nil {
		return
	}
	delete(e.pending, address)

	// A failed refresh keeps the identity already known for the address.
	if prev, ok := e.cache[address]; ok && prev.found && !found && !errors.Is(err, ErrNotFound) {
		result, found = prev.result, true
	}
	e.cache[address] = cacheEntry{
		result:  result,
		found:   found,
		expires: e.now().Add(e.ttl),
	}
}
