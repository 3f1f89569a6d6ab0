// Package watcher owns the advertisement listening lifecycle and turns raw
// radio events into presence notifications.
//
// # State Machine
//
// A Watcher is either Stopped or Listening.
//
//	Stopped --Start--> Listening   fires EventStarted once
//	Listening --Stop--> Stopped    fires EventStopped once, clears the store
//
// Start and Stop are idempotent. If the radio source fails on its own the
// watcher moves to Stopped exactly as if Stop had been called, and the
// EventStopped notification carries the source error in Event.Err.
//
// # Merge Path
//
// Every advertisement is validated, gated on the listening state (checked
// under the same lock Stop takes to flip it), run through a lazy eviction
// sweep, keyed, merged and classified. No merge succeeds once Stop has
// flipped the state, even while the source is still winding down.
//
// Enrichment lookups never block the merge path. A miss queues a
// background lookup and the event is merged with whatever is already
// cached; the result folds into later events for the same address.
//
// # Notifications
//
// Events are delivered by a single dispatcher goroutine from an unbounded
// FIFO queue, so subscribers see events in exactly the order they were
// produced and a slow subscriber never stalls the radio callback.
// Handlers may call Start, Stop and every query method. They must not call
// Close.
//
// # Sweeping
//
// Stale devices are evicted lazily on each advertisement and on Snapshot,
// and periodically every Options.SweepInterval while listening.
package watcher
