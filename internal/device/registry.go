package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/bluerial/internal/infrastructure/config"
	"github.com/nerrad567/bluerial/internal/presence"
	"github.com/nerrad567/bluerial/internal/watcher"
)

// Logger defines the logging interface used by the Registry and Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides known-device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache keyed by address.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by the Create, Update and Delete methods. Resolve reads only the cache.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[uint64]KnownDevice
	cacheMu sync.RWMutex
	logger  Logger
}

// Registry is the watcher's enrichment source.
var _ watcher.Enricher = (*Registry)(nil)

// NewRegistry creates a new known-device registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[uint64]KnownDevice),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all entries from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading known devices: %w", err)
	}

	cache := make(map[uint64]KnownDevice, len(devices))
	for _, d := range devices {
		cache[d.Address] = d
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("known device cache refreshed", "count", len(devices))
	return nil
}

// Seed creates the configured entries that are not registered yet.
// Existing entries are left untouched.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - seeds: known_devices list from config.yaml
//
// Returns:
//   - int: Number of entries created
//   - error: The first invalid seed or persistence failure
func (r *Registry) Seed(ctx context.Context, seeds []config.KnownDeviceConfig) (int, error) {
	created := 0
	for i, seed := range seeds {
		d, err := KnownDeviceFromConfig(seed)
		if err != nil {
			return created, fmt.Errorf("known_devices[%d]: %w", i, err)
		}

		if _, ok := r.cached(d.Address); ok {
			continue
		}
		err = r.Create(ctx, &d)
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrDeviceExists):
			// Present in the database but not yet cached, or the stable
			// id is taken by another address.
			r.logger.Warn("known device seed skipped", "address", seed.Address, "stable_id", seed.StableID)
		default:
			return created, fmt.Errorf("known_devices[%d]: %w", i, err)
		}
	}
	if created > 0 {
		r.logger.Info("known devices seeded", "created", created)
	}
	return created, nil
}

// Resolve implements watcher.Enricher from the cache.
//
// Returns:
//   - watcher.Enrichment: Stable id, name and connection flags
//   - error: Wraps both ErrDeviceNotFound and watcher.ErrNotFound when unknown
func (r *Registry) Resolve(ctx context.Context, address uint64) (watcher.Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return watcher.Enrichment{}, err
	}
	d, ok := r.cached(address)
	if !ok {
		return watcher.Enrichment{}, fmt.Errorf("%w: %w", ErrDeviceNotFound, watcher.ErrNotFound)
	}
	return d.Enrichment(), nil
}

// Get retrieves an entry by address, falling back to the repository.
func (r *Registry) Get(ctx context.Context, address uint64) (KnownDevice, error) {
	if d, ok := r.cached(address); ok {
		return d, nil
	}

	d, err := r.repo.GetByAddress(ctx, address)
	if err != nil {
		return KnownDevice{}, err
	}

	r.cacheMu.Lock()
	r.cache[address] = d
	r.cacheMu.Unlock()
	return d, nil
}

// List returns the cached entries ordered by stable id.
func (r *Registry) List() []KnownDevice {
	r.cacheMu.RLock()
	devices := make([]KnownDevice, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, d)
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].StableID < devices[j].StableID })
	return devices
}

// Create validates and persists a new entry.
func (r *Registry) Create(ctx context.Context, d *KnownDevice) error {
	if err := ValidateKnownDevice(*d); err != nil {
		return err
	}
	if err := r.repo.Create(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.Address] = *d
	r.cacheMu.Unlock()

	r.logger.Info("known device created", "address", presence.FormatAddress(d.Address), "stable_id", d.StableID)
	return nil
}

// Update validates and persists changes to an existing entry.
func (r *Registry) Update(ctx context.Context, d *KnownDevice) error {
	if err := ValidateKnownDevice(*d); err != nil {
		return err
	}
	if err := r.repo.Update(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if prev, ok := r.cache[d.Address]; ok && d.CreatedAt.IsZero() {
		d.CreatedAt = prev.CreatedAt
	}
	r.cache[d.Address] = *d
	r.cacheMu.Unlock()

	r.logger.Info("known device updated", "address", presence.FormatAddress(d.Address), "stable_id", d.StableID)
	return nil
}

// Delete removes an entry.
func (r *Registry) Delete(ctx context.Context, address uint64) error {
	if err := r.repo.Delete(ctx, address); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, address)
	r.cacheMu.Unlock()

	r.logger.Info("known device deleted", "address", presence.FormatAddress(address))
	return nil
}

// Count returns the number of cached entries.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

func (r *Registry) cached(address uint64) (KnownDevice, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	d, ok := r.cache[address]
	return d, ok
}
