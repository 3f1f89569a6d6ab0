package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bluerial/internal/presence"
)

func testSighting(key presence.DeviceKey, addr uint64, event presence.EventType, rssi int16, at time.Time) *Sighting {
	return &Sighting{
		DeviceKey: key.String(),
		Event:     event.String(),
		Record: presence.Record{
			Key:      key,
			Address:  addr,
			Name:     "Kitchen Tag",
			RSSI:     rssi,
			VendorID: 0x004C,
			Payload:  []byte{0x02, 0x15},
			LastSeen: at,
		},
		SeenAt: at,
	}
}

func TestSightingRepository_RecordAndHistory(t *testing.T) {
	repo := NewSQLiteSightingRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := presence.AddressKey(0xAABBCCDDEEFF)
	events := []presence.EventType{presence.EventNewDiscovery, presence.EventDataChanged, presence.EventTimedOut}
	for i, ev := range events {
		s := testSighting(key, 0xAABBCCDDEEFF, ev, int16(-60-i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.RecordSighting(ctx, s))
		assert.NotZero(t, s.ID, "RecordSighting sets ID")
	}
	other := testSighting(presence.AddressKey(0x010203040506), 0x010203040506, presence.EventNewDiscovery, -40, base)
	require.NoError(t, repo.RecordSighting(ctx, other))

	history, err := repo.History(ctx, "AABBCCDDEEFF", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Newest first.
	got := make([]string, len(history))
	for i, s := range history {
		got[i] = s.Event
	}
	assert.Equal(t, []string{"timed_out", "data_changed", "new_discovery"}, got)

	first := history[2]
	assert.True(t, first.SeenAt.Equal(base), "SeenAt = %v, want %v", first.SeenAt, base)
	assert.Equal(t, key, first.Record.Key)
	assert.Equal(t, int16(-60), first.Record.RSSI)
	assert.Equal(t, uint16(0x004C), first.Record.VendorID)
	assert.Equal(t, []byte{0x02, 0x15}, first.Record.Payload)
}

func TestSightingRepository_StableKeys(t *testing.T) {
	repo := NewSQLiteSightingRepository(setupTestDB(t))
	ctx := context.Background()

	key := presence.StableKey("kitchen-tag")
	s := testSighting(key, 0xAABBCCDDEEFF, presence.EventNameChanged, -50, time.Now())
	require.NoError(t, repo.RecordSighting(ctx, s))

	history, err := repo.History(ctx, "kitchen-tag", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, key, history[0].Record.Key)
}

func TestSightingRepository_HistoryLimit(t *testing.T) {
	repo := NewSQLiteSightingRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := presence.AddressKey(0xAABBCCDDEEFF)
	for i := 0; i < maxHistoryLimit+10; i++ {
		s := testSighting(key, 0xAABBCCDDEEFF, presence.EventDataChanged, -50, base.Add(time.Duration(i)*time.Millisecond))
		require.NoError(t, repo.RecordSighting(ctx, s))
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, defaultHistoryLimit},
		{-1, defaultHistoryLimit},
		{5, 5},
		{1000, maxHistoryLimit},
	}
	for _, tt := range tests {
		history, err := repo.History(ctx, key.String(), tt.limit)
		require.NoError(t, err, "History(%d)", tt.limit)
		assert.Len(t, history, tt.want, "History(%d)", tt.limit)
	}
}

func TestSightingRepository_Invalid(t *testing.T) {
	repo := NewSQLiteSightingRepository(setupTestDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, repo.RecordSighting(ctx, &Sighting{Event: "new_discovery"}), ErrInvalidSighting)
	_, err := repo.History(ctx, "", 10)
	assert.ErrorIs(t, err, ErrInvalidSighting)
}

func TestSightingRepository_Prune(t *testing.T) {
	repo := NewSQLiteSightingRepository(setupTestDB(t))
	ctx := context.Background()

	key := presence.AddressKey(0xAABBCCDDEEFF)
	old := testSighting(key, 0xAABBCCDDEEFF, presence.EventNewDiscovery, -50, time.Now().Add(-48*time.Hour))
	recent := testSighting(key, 0xAABBCCDDEEFF, presence.EventTimedOut, -50, time.Now())
	for _, s := range []*Sighting{old, recent} {
		require.NoError(t, repo.RecordSighting(ctx, s))
	}

	n, err := repo.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Prune(ctx, 0)
	assert.Error(t, err)
}
