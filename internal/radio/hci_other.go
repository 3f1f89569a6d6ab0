//go:build !linux

package radio

import (
	"github.com/nerrad567/bluerial/internal/presence"
)

// HCISource is unavailable on this platform; Start always fails.
type HCISource struct {
	opts HCIOptions
}

// NewHCISource returns a source whose Start reports ErrUnsupported.
func NewHCISource(opts HCIOptions) *HCISource {
	return &HCISource{opts: opts}
}

// Start reports ErrUnsupported.
func (s *HCISource) Start(func(presence.Advertisement), func(error)) error {
	return ErrUnsupported
}

// Stop is a no-op.
func (s *HCISource) Stop() error {
	return nil
}
