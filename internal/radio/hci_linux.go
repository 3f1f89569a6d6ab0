//go:build linux

package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/nerrad567/bluerial/internal/presence"
)

// HCISource scans a local controller through the Linux HCI socket.
//
// Thread Safety: All methods are safe for concurrent use.
type HCISource struct {
	opts HCIOptions

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHCISource creates an idle HCI source. The adapter is opened on Start
// and released when scanning ends.
func NewHCISource(opts HCIOptions) *HCISource {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &HCISource{opts: opts}
}

// Start opens the adapter and begins scanning in the background.
func (s *HCISource) Start(handle func(presence.Advertisement), fail func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	dev, err := linux.NewDevice(
		ble.OptDeviceID(s.opts.DeviceID),
		ble.OptScanParams(scanParams(s.opts)),
	)
	if err != nil {
		return fmt.Errorf("opening hci%d: %w", s.opts.DeviceID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.running = true
	s.cancel = cancel
	s.done = done

	go s.scan(ctx, dev, handle, fail, done)

	s.opts.Logger.Info("hci scan started",
		"adapter", fmt.Sprintf("hci%d", s.opts.DeviceID),
		"active", s.opts.ActiveScan,
		"allow_duplicates", s.opts.AllowDuplicates)
	return nil
}

func (s *HCISource) scan(ctx context.Context, dev *linux.Device, handle func(presence.Advertisement), fail func(error), done chan struct{}) {
	defer close(done)
	defer func() {
		if err := dev.Stop(); err != nil {
			s.opts.Logger.Warn("closing hci device failed", "error", err)
		}
	}()

	err := dev.Scan(ctx, s.opts.AllowDuplicates, func(a ble.Advertisement) {
		handle(convert(a, s.opts.Now()))
	})

	// Stop cancelled the context; anything else is a spontaneous failure.
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if err == nil || errors.Is(err, context.Canceled) {
		err = ErrScanEnded
	} else {
		err = fmt.Errorf("%w: %v", ErrScanEnded, err)
	}
	fail(err)
}

// Stop ends scanning and waits for the adapter to be released.
func (s *HCISource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	<-done

	s.opts.Logger.Info("hci scan stopped", "adapter", fmt.Sprintf("hci%d", s.opts.DeviceID))
	return nil
}
