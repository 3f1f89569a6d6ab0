package watcher

import (
	"context"

	"github.com/nerrad567/bluerial/internal/presence"
)

// Source is the radio that produces advertisements.
type Source interface {
	// Start begins scanning. handle is called for every advertisement,
	// possibly from a goroutine owned by the source. fail is called at most
	// once if scanning ends without Stop being called.
	Start(handle func(presence.Advertisement), fail func(error)) error

	// Stop ends scanning. Advertisements delivered after Stop returns are
	// discarded by the watcher.
	Stop() error
}

// Enrichment is what an Enricher knows about one radio address.
type Enrichment struct {
	// StableID is the identity that survives address rotation, if known.
	StableID string

	// Name is used when the advertisement carries no local name.
	Name string

	Connection presence.ConnectionState
}

// Enricher resolves extra information about an address. It is called off
// the merge path with a bounded context.
type Enricher interface {
	Resolve(ctx context.Context, address uint64) (Enrichment, error)
}

// Logger defines the logging interface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
