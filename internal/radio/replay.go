package radio

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/bluerial/internal/presence"
)

// ReplayRecord is one line of a JSON-lines capture.
type ReplayRecord struct {
	// Address in any form presence.ParseAddress accepts.
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
	Name    string `json:"name,omitempty"`

	// ManufacturerData is hex, company identifier first (little-endian).
	ManufacturerData string `json:"manufacturer_data,omitempty"`

	// DelayMS is the pause before this record is emitted.
	DelayMS int `json:"delay_ms,omitempty"`
}

// ReplayItem is a scheduled advertisement. The timestamp is stamped when
// the item is emitted.
type ReplayItem struct {
	Delay         time.Duration
	Advertisement presence.Advertisement
}

// LoadReplayFile reads a JSON-lines capture. Blank lines and lines starting
// with "#" are skipped.
//
// Parameters:
//   - path: Capture file path
//
// Returns:
//   - []ReplayItem: Items in file order
//   - error: If the file cannot be read or a line is malformed
func LoadReplayFile(path string) ([]ReplayItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()

	var items []ReplayItem
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var rec ReplayRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		item, err := rec.item()
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}
	return items, nil
}

func (r ReplayRecord) item() (ReplayItem, error) {
	addr, err := presence.ParseAddress(r.Address)
	if err != nil {
		return ReplayItem{}, err
	}
	var md []byte
	if r.ManufacturerData != "" {
		md, err = hex.DecodeString(strings.ReplaceAll(r.ManufacturerData, " ", ""))
		if err != nil {
			return ReplayItem{}, fmt.Errorf("manufacturer_data: %w", err)
		}
	}
	return ReplayItem{
		Delay: time.Duration(r.DelayMS) * time.Millisecond,
		Advertisement: presence.Advertisement{
			Address:          addr,
			RSSI:             clampRSSI(r.RSSI),
			LocalName:        r.Name,
			ManufacturerData: md,
		},
	}, nil
}

// ReplaySource emits advertisements received on a feed channel.
//
// Closing the feed ends scanning and the failure callback receives
// ErrReplayExhausted, the same way a radio that went away is reported.
type ReplaySource struct {
	feed func() <-chan ReplayItem
	now  func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewReplaySource creates a source reading from feed.
func NewReplaySource(feed <-chan ReplayItem) *ReplaySource {
	return &ReplaySource{
		feed: func() <-chan ReplayItem { return feed },
		now:  time.Now,
	}
}

// NewReplaySourceFromItems creates a source that replays items from the
// beginning on every Start.
func NewReplaySourceFromItems(items []ReplayItem) *ReplaySource {
	return &ReplaySource{
		feed: func() <-chan ReplayItem {
			ch := make(chan ReplayItem, len(items))
			for _, it := range items {
				ch <- it
			}
			close(ch)
			return ch
		},
		now: time.Now,
	}
}

// Start begins emitting in the background.
func (s *ReplaySource) Start(handle func(presence.Advertisement), fail func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(s.feed(), handle, fail, s.stop, s.done)
	return nil
}

func (s *ReplaySource) run(feed <-chan ReplayItem, handle func(presence.Advertisement), fail func(error), stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case item, ok := <-feed:
			if !ok {
				s.mu.Lock()
				stopped := !s.running
				s.running = false
				s.mu.Unlock()
				if !stopped {
					fail(ErrReplayExhausted)
				}
				return
			}
			if item.Delay > 0 {
				timer := time.NewTimer(item.Delay)
				select {
				case <-stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			adv := item.Advertisement
			adv.Timestamp = s.now()
			handle(adv)
		}
	}
}

// Stop ends emission and waits for the background goroutine.
func (s *ReplaySource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	return nil
}
