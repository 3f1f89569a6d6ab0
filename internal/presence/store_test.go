package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func obsAt(addr uint64, at time.Time, name string, rssi int16, vendor uint16, payload []byte) Observation {
	return Observation{
		Address:    addr,
		ObservedAt: at,
		Name:       name,
		RSSI:       rssi,
		VendorID:   vendor,
		Payload:    payload,
	}
}

func TestStore_MergeNewDiscovery(t *testing.T) {
	s := NewStore()
	key := AddressKey(0xAABB)

	first := s.Merge(key, obsAt(0xAABB, t0, "Dev1", -50, 0, nil))
	assert.True(t, first.IsNew)
	assert.False(t, first.NameChanged, "first merge never reports a name change")
	assert.False(t, first.DataChanged, "first merge never reports a data change")

	for i := 1; i <= 3; i++ {
		res := s.Merge(key, obsAt(0xAABB, t0.Add(time.Duration(i)*time.Second), "Dev1", -50, 0, nil))
		assert.False(t, res.IsNew, "merge %d", i)
	}
}

func TestStore_MergeIdenticalRepeat(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x01)
	payload := []byte{0x01, 0x02}

	s.Merge(key, obsAt(0x01, t0, "Sensor", -60, 0x004C, payload))
	second := s.Merge(key, obsAt(0x01, t0.Add(2*time.Second), "Sensor", -60, 0x004C, payload))

	assert.False(t, second.NameChanged)
	assert.False(t, second.DataChanged)

	got, ok := s.Get(key)
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Second), got.LastSeen)
}

func TestStore_MergeHoldOver(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x02)
	s.Merge(key, obsAt(0x02, t0, "Sensor-A", -70, 0x0059, []byte{0x01, 0x02}))

	tests := []struct {
		name    string
		payload []byte
	}{
		{"nil payload", nil},
		{"empty payload", []byte{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Merge(key, obsAt(0x02, t0.Add(time.Second), "", -65, 0, tt.payload))

			assert.Equal(t, []byte{0x01, 0x02}, res.Record.Payload)
			assert.Equal(t, uint16(0x0059), res.Record.VendorID)
			assert.Equal(t, "Sensor-A", res.Record.Name)
			assert.Equal(t, int16(-65), res.Record.RSSI, "rssi is never held over")
			assert.False(t, res.DataChanged)
			assert.False(t, res.NameChanged)
		})
	}
}

func TestStore_MergeNameNonErasure(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x03)
	s.Merge(key, obsAt(0x03, t0, "Sensor-A", -70, 0, nil))

	for _, blank := range []string{"", "   ", "\t"} {
		res := s.Merge(key, obsAt(0x03, t0.Add(time.Second), blank, -70, 0, nil))
		assert.Equal(t, "Sensor-A", res.Record.Name)
		assert.False(t, res.NameChanged)
	}
}

func TestStore_MergeNameChanged(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x04)
	s.Merge(key, obsAt(0x04, t0, "", -70, 0, nil))

	// Learning a name for a nameless device counts as a change.
	res := s.Merge(key, obsAt(0x04, t0.Add(time.Second), "Dev", -70, 0, nil))
	assert.True(t, res.NameChanged)

	res = s.Merge(key, obsAt(0x04, t0.Add(2*time.Second), "Dev", -70, 0, nil))
	assert.False(t, res.NameChanged)

	res = s.Merge(key, obsAt(0x04, t0.Add(3*time.Second), "DevX", -70, 0, nil))
	assert.True(t, res.NameChanged)
	assert.Equal(t, "DevX", res.Record.Name)
}

func TestStore_MergeDataChanged(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x05)
	s.Merge(key, obsAt(0x05, t0, "", -70, 0, nil))

	res := s.Merge(key, obsAt(0x05, t0.Add(time.Second), "", -70, 0x004C, []byte{0x10}))
	assert.True(t, res.DataChanged, "first payload for a known device")

	res = s.Merge(key, obsAt(0x05, t0.Add(2*time.Second), "", -70, 0x004C, []byte{0x10, 0x11}))
	assert.True(t, res.DataChanged)

	res = s.Merge(key, obsAt(0x05, t0.Add(3*time.Second), "", -70, 0x004C, []byte{0x10, 0x11}))
	assert.False(t, res.DataChanged)
}

func TestStore_MergeConnectionHoldOver(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x06)

	enriched := obsAt(0x06, t0, "", -70, 0, nil)
	enriched.Connection = &ConnectionState{Paired: true, Pairable: true}
	s.Merge(key, enriched)

	res := s.Merge(key, obsAt(0x06, t0.Add(time.Second), "", -70, 0, nil))
	assert.Equal(t, ConnectionState{Paired: true, Pairable: true}, res.Record.Connection)
}

func TestStore_RecordsAreCopies(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x07)
	payload := []byte{0x01, 0x02}

	res := s.Merge(key, obsAt(0x07, t0, "", -70, 0x1, payload))
	payload[0] = 0xFF
	res.Record.Payload[1] = 0xFF

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, []byte{0x01, 0x02}, snap[0].Payload)

	snap[0].Payload[0] = 0xEE
	got, _ := s.Get(key)
	assert.Equal(t, []byte{0x01, 0x02}, got.Payload)
}

func TestStore_EvictStaleBoundary(t *testing.T) {
	s := NewStore()
	now := t0.Add(time.Hour)
	timeout := 30 * time.Second

	s.Merge(AddressKey(0x10), obsAt(0x10, now.Add(-29*time.Second), "fresh", -50, 0, nil))
	s.Merge(AddressKey(0x11), obsAt(0x11, now.Add(-31*time.Second), "stale", -50, 0, nil))
	s.Merge(AddressKey(0x12), obsAt(0x12, now.Add(-30*time.Second), "edge", -50, 0, nil))

	evicted := s.EvictStale(now, timeout)
	require.Len(t, evicted, 1)
	assert.Equal(t, "stale", evicted[0].Name)

	assert.Empty(t, s.EvictStale(now, timeout), "an evicted record is returned exactly once")

	_, ok := s.Get(AddressKey(0x12))
	assert.True(t, ok, "exactly timeout old is retained")
	assert.Equal(t, 2, s.Len())
}

func TestStore_EvictStaleNonPositiveTimeout(t *testing.T) {
	s := NewStore()
	s.Merge(AddressKey(0x20), obsAt(0x20, t0, "", -50, 0, nil))

	assert.Nil(t, s.EvictStale(t0.Add(time.Hour), 0))
	assert.Equal(t, 1, s.Len())
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	for i := uint64(1); i <= 3; i++ {
		s.Merge(AddressKey(i), obsAt(i, t0, "", -50, 0, nil))
	}

	assert.Equal(t, 3, s.Clear())
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, s.Clear())
}

func TestStore_SnapshotOrderedByKey(t *testing.T) {
	s := NewStore()
	s.Merge(AddressKey(0x30), obsAt(0x30, t0, "", -50, 0, nil))
	s.Merge(AddressKey(0x10), obsAt(0x10, t0, "", -50, 0, nil))
	s.Merge(AddressKey(0x20), obsAt(0x20, t0, "", -50, 0, nil))

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, uint64(0x10), snap[0].Address)
	assert.Equal(t, uint64(0x20), snap[1].Address)
	assert.Equal(t, uint64(0x30), snap[2].Address)
}

func TestStore_StableKeyFollowsAddressRotation(t *testing.T) {
	s := NewStore()
	key := StableKey("tag-1")

	s.Merge(key, obsAt(0xA1, t0, "Tag", -50, 0, nil))
	res := s.Merge(key, obsAt(0xB2, t0.Add(time.Second), "", -52, 0, nil))

	assert.False(t, res.IsNew)
	assert.Equal(t, uint64(0xB2), res.Record.Address)
	assert.Equal(t, 1, s.Len())
}

func TestStore_MergeFromMovesAddressRecord(t *testing.T) {
	s := NewStore()
	addrKey := AddressKey(0xA1)
	stable := StableKey("tag")
	s.Merge(addrKey, obsAt(0xA1, t0, "Tag", -60, 0x004C, []byte{0x01}))

	res := s.MergeFrom(stable, addrKey, obsAt(0xA1, t0.Add(time.Second), "", -55, 0, nil))
	assert.False(t, res.IsNew, "a moved device is not a new discovery")
	assert.True(t, res.Moved)
	assert.False(t, res.NameChanged)
	assert.False(t, res.DataChanged)
	assert.Equal(t, stable, res.Record.Key)
	assert.Equal(t, "Tag", res.Record.Name)
	assert.Equal(t, uint16(0x004C), res.Record.VendorID)
	assert.Equal(t, []byte{0x01}, res.Record.Payload)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, stable, snap[0].Key)
	_, ok := s.Get(addrKey)
	assert.False(t, ok)
}

func TestStore_MergeFromIntoExistingKey(t *testing.T) {
	s := NewStore()
	stable := StableKey("tag")
	s.Merge(stable, obsAt(0xA1, t0, "", -60, 0, nil))
	s.Merge(AddressKey(0xB2), obsAt(0xB2, t0.Add(time.Second), "Tag", -58, 0x0059, []byte{0x02}))

	res := s.MergeFrom(stable, AddressKey(0xB2), obsAt(0xB2, t0.Add(2*time.Second), "", -57, 0, nil))
	assert.False(t, res.IsNew)
	assert.True(t, res.Moved)
	assert.Equal(t, "Tag", res.Record.Name, "missing fields come from the absorbed record")
	assert.Equal(t, uint16(0x0059), res.Record.VendorID)
	assert.Equal(t, uint64(0xB2), res.Record.Address)
	assert.Equal(t, 1, s.Len())
}

func TestStore_MergeFromWithoutOldRecord(t *testing.T) {
	s := NewStore()

	res := s.MergeFrom(StableKey("tag"), AddressKey(0xA1), obsAt(0xA1, t0, "Tag", -60, 0, nil))
	assert.True(t, res.IsNew)
	assert.False(t, res.Moved)

	res = s.MergeFrom(AddressKey(0xA1), AddressKey(0xA1), obsAt(0xA1, t0, "Tag", -60, 0, nil))
	assert.True(t, res.IsNew, "same key behaves like Merge")
	assert.False(t, res.Moved)
	assert.Equal(t, 2, s.Len())
}

// TestStore_ConcurrentMergesSameKey checks that per-key read-modify-write is
// never lost: exactly one merge sees the key as new.
func TestStore_ConcurrentMergesSameKey(t *testing.T) {
	s := NewStore()
	key := AddressKey(0x40)

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		newSeen int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := s.Merge(key, obsAt(0x40, t0.Add(time.Duration(i)*time.Millisecond), fmt.Sprintf("n%d", i), -50, 0, nil))
			if res.IsNew {
				mu.Lock()
				newSeen++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, newSeen)
	assert.Equal(t, 1, s.Len())
}

// TestStore_ConcurrentMergeSweepSnapshot exercises merges, sweeps and
// snapshots together; run with -race.
func TestStore_ConcurrentMergeSweepSnapshot(t *testing.T) {
	s := NewStore()
	done := make(chan struct{})
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				addr := uint64(w*1000 + i%10 + 1)
				s.Merge(AddressKey(addr), obsAt(addr, time.Now(), "dev", -40, 0x1, []byte{byte(i)}))
			}
		}(w)
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				s.EvictStale(time.Now(), time.Hour)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				for _, r := range s.Snapshot() {
					assert.Equal(t, r.Key.Address, r.Address, "torn record for key %s", r.Key)
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()

	assert.Equal(t, 40, s.Len())
}
