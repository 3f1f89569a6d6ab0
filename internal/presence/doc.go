// Package presence holds the device presence cache: the keyed map of
// last-known device state that advertisements are merged into.
//
// # Records
//
// A Record is a value. The Store replaces a key's record wholesale on every
// merge and hands out copies, so no caller can observe or cause a partial
// update.
//
// Merging applies hold-over rules:
//   - Name: a blank incoming name never replaces a known one.
//   - VendorID: zero means "no vendor data" and keeps the prior value.
//   - Payload: nil or empty keeps the prior payload.
//   - Connection: kept unless the observation carries enrichment.
//   - RSSI and LastSeen: always taken from the newest observation.
//
// # Concurrency
//
// A single sync.RWMutex guards the whole map. Merge, EvictStale and Clear
// take the write lock; Snapshot, Get and Len take the read lock. This
// serialises read-modify-write per key and keeps eviction from racing a
// merge on the same key.
//
// # Classification
//
// Classify turns a MergeResult into the ordered list of change events:
// Discovered, then DataChanged, NameChanged and NewDiscovery when they
// apply.
package presence
