package presence

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"time"
)

// MergeResult is the outcome of one Store.Merge.
type MergeResult struct {
	// Record is a copy of the record installed by the merge.
	Record Record

	// IsNew is true when no record existed for the key.
	IsNew bool

	// NameChanged is true when a prior record existed and a non-blank
	// incoming name differs from the prior name.
	NameChanged bool

	// DataChanged is true when a prior record existed and the resulting
	// payload differs byte-for-byte from the prior payload.
	DataChanged bool

	// Moved is true when the merge absorbed a record held under another
	// key (see MergeFrom). The old key no longer exists.
	Moved bool
}

// Store is the concurrent DeviceKey → Record map.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Records are copied on the way in and on the way out.
type Store struct {
	mu      sync.RWMutex
	records map[DeviceKey]Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		records: make(map[DeviceKey]Record),
	}
}

// Merge folds obs into the record for key and installs the result.
//
// The read of the prior record, the hold-over computation and the install
// happen under one write lock, so merges on the same key never interleave.
//
// Parameters:
//   - key: Device key under the active keying scheme
//   - obs: Incoming observation
//
// Returns:
//   - MergeResult: Installed record and change flags
func (s *Store) Merge(key DeviceKey, obs Observation) MergeResult {
	return s.MergeFrom(key, key, obs)
}

// MergeFrom is Merge for a device that may still be held under an older
// key, such as its address key before a stable identity was resolved.
//
// When from differs from key and a record exists under from, that record
// is removed and treated as the prior state of key, so the device is not
// reported as new and its held-over fields carry across. If key already
// has a record, that record stays the prior state and any field it lacks
// is taken from the record under from. Both keys are handled under one
// write lock, so no Snapshot ever sees the device twice or not at all.
//
// Parameters:
//   - key: Device key under the active keying scheme
//   - from: Key the device may currently be stored under
//   - obs: Incoming observation
//
// Returns:
//   - MergeResult: Installed record and change flags, with Moved set when
//     the record under from was absorbed
func (s *Store) MergeFrom(key, from DeviceKey, obs Observation) MergeResult {
	incomingBlank := strings.TrimSpace(obs.Name) == ""

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, existed := s.records[key]

	moved := false
	if from != key {
		if old, ok := s.records[from]; ok {
			delete(s.records, from)
			moved = true
			if existed {
				prior = holdOver(prior, old)
			} else {
				prior, existed = old, true
			}
		}
	}

	next := Record{
		Key:        key,
		Address:    obs.Address,
		LastSeen:   obs.ObservedAt,
		RSSI:       obs.RSSI,
		Name:       prior.Name,
		VendorID:   prior.VendorID,
		Payload:    prior.Payload,
		Connection: prior.Connection,
	}
	if !incomingBlank {
		next.Name = obs.Name
	}
	if obs.VendorID != 0 {
		next.VendorID = obs.VendorID
	}
	if len(obs.Payload) > 0 {
		next.Payload = make([]byte, len(obs.Payload))
		copy(next.Payload, obs.Payload)
	}
	if obs.Connection != nil {
		next.Connection = *obs.Connection
	}

	res := MergeResult{IsNew: !existed, Moved: moved}
	if existed {
		res.NameChanged = !incomingBlank && obs.Name != prior.Name
		res.DataChanged = !bytes.Equal(next.Payload, prior.Payload)
	}

	s.records[key] = next
	res.Record = next.Clone()
	return res
}

// holdOver fills the hold-over fields base lacks from other.
func holdOver(base, other Record) Record {
	if strings.TrimSpace(base.Name) == "" {
		base.Name = other.Name
	}
	if base.VendorID == 0 {
		base.VendorID = other.VendorID
	}
	if len(base.Payload) == 0 {
		base.Payload = other.Payload
	}
	return base
}

// Get returns a copy of the record for key.
func (s *Store) Get(key DeviceKey) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return r.Clone(), true
}

// Snapshot returns copies of all current records, ordered by key.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

// EvictStale removes every record with now-LastSeen > timeout and returns
// the removed records. A non-positive timeout evicts nothing.
func (s *Store) EvictStale(now time.Time, timeout time.Duration) []Record {
	if timeout <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []Record
	for key, r := range s.records {
		if now.Sub(r.LastSeen) > timeout {
			delete(s.records, key)
			evicted = append(evicted, r.Clone())
		}
	}
	return evicted
}

// Clear removes all records and returns how many were removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = make(map[DeviceKey]Record)
	return n
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
