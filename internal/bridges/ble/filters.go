package ble

import (
	"sync"

	"github.com/nerrad567/bluerial/internal/presence"
)

// Filters is the set of device filters limiting per-device notifications.
//
// A filter is a device key: an address (any separator style) or a stable
// id, normalised with presence.CanonicalKeyText.
type Filters struct {
	mu   sync.RWMutex
	list []string
}

// NewFilters returns a filter set seeded with initial.
func NewFilters(initial ...string) *Filters {
	f := &Filters{}
	for _, s := range initial {
		f.Add(s)
	}
	return f
}

// Add inserts filter, reporting false for blanks and duplicates.
func (f *Filters) Add(filter string) bool {
	norm := presence.CanonicalKeyText(filter)
	if norm == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.list {
		if existing == norm {
			return false
		}
	}
	f.list = append(f.list, norm)
	return true
}

// Clear removes every filter.
func (f *Filters) Clear() {
	f.mu.Lock()
	f.list = nil
	f.mu.Unlock()
}

// List returns the filters in insertion order.
func (f *Filters) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.list...)
}

// Len returns the number of filters.
func (f *Filters) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.list)
}

// Matches reports whether notifications about rec should be published.
// With no filters every device matches.
func (f *Filters) Matches(rec presence.Record) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.list) == 0 {
		return true
	}
	for _, filter := range f.list {
		if rec.MatchesKeyText(filter) {
			return true
		}
	}
	return false
}
