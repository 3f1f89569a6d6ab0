package radio

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/bluerial/internal/presence"
)

type fakeBLEAdvertisement struct {
	addr ble.Addr
	rssi int
	name string
	md   []byte
}

func (a fakeBLEAdvertisement) Addr() ble.Addr          { return a.addr }
func (a fakeBLEAdvertisement) RSSI() int               { return a.rssi }
func (a fakeBLEAdvertisement) LocalName() string       { return a.name }
func (a fakeBLEAdvertisement) ManufacturerData() []byte { return a.md }

func TestConvert(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	md := []byte{0x4C, 0x00, 0x02, 0x15}

	got := convert(fakeBLEAdvertisement{
		addr: ble.NewAddr("aa:bb:cc:dd:ee:ff"),
		rssi: -67,
		name: "Tag",
		md:   md,
	}, at)

	assert.Equal(t, uint64(0xAABBCCDDEEFF), got.Address)
	assert.Equal(t, at, got.Timestamp)
	assert.Equal(t, int16(-67), got.RSSI)
	assert.Equal(t, "Tag", got.LocalName)
	assert.Equal(t, md, got.ManufacturerData)
	require.NoError(t, got.Validate())

	md[0] = 0xFF
	assert.Equal(t, byte(0x4C), got.ManufacturerData[0], "manufacturer data is copied")
}

func TestConvert_BadAddressIsInvalid(t *testing.T) {
	got := convert(fakeBLEAdvertisement{addr: ble.NewAddr("6e2b21a0-0000-1000-8000-00805f9b34fb")}, time.Now())
	assert.Zero(t, got.Address)
	assert.ErrorIs(t, got.Validate(), presence.ErrInvalidAdvertisement)

	got = convert(fakeBLEAdvertisement{}, time.Now())
	assert.Zero(t, got.Address)
}

func TestClampRSSI(t *testing.T) {
	assert.Equal(t, int16(-50), clampRSSI(-50))
	assert.Equal(t, int16(math.MaxInt16), clampRSSI(math.MaxInt32))
	assert.Equal(t, int16(math.MinInt16), clampRSSI(math.MinInt32))
}

func TestScanParams(t *testing.T) {
	assert.Equal(t, uint8(0x00), scanParams(HCIOptions{}).LEScanType)
	assert.Equal(t, uint8(0x01), scanParams(HCIOptions{ActiveScan: true}).LEScanType)
}

func TestLoadReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.jsonl")
	content := `# kitchen capture
{"address":"AA:BB:CC:DD:EE:FF","rssi":-50,"name":"Dev1"}

{"address":"aabbccddeeff","rssi":-48,"manufacturer_data":"4c00 0215","delay_ms":25}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	items, err := LoadReplayFile(path)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Dev1", items[0].Advertisement.LocalName)
	assert.Equal(t, uint64(0xAABBCCDDEEFF), items[0].Advertisement.Address)
	assert.Zero(t, items[0].Delay)

	assert.Equal(t, 25*time.Millisecond, items[1].Delay)
	assert.Equal(t, []byte{0x4C, 0x00, 0x02, 0x15}, items[1].Advertisement.ManufacturerData)
}

func TestLoadReplayFile_Errors(t *testing.T) {
	_, err := LoadReplayFile(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	tests := map[string]string{
		"bad json":    `{"address":`,
		"bad address": `{"address":"zz"}`,
		"bad hex":     `{"address":"01","manufacturer_data":"4g"}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "capture.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(content+"\n"), 0600))
			_, err := LoadReplayFile(path)
			assert.ErrorContains(t, err, "replay line 1")
		})
	}
}

type collector struct {
	mu   sync.Mutex
	advs []presence.Advertisement
	errs []error
}

func (c *collector) handle(a presence.Advertisement) {
	c.mu.Lock()
	c.advs = append(c.advs, a)
	c.mu.Unlock()
}

func (c *collector) fail(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (c *collector) snapshot() ([]presence.Advertisement, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]presence.Advertisement(nil), c.advs...), append([]error(nil), c.errs...)
}

func TestReplaySource_ExhaustionReportsFailure(t *testing.T) {
	src := NewReplaySourceFromItems([]ReplayItem{
		{Advertisement: presence.Advertisement{Address: 1, RSSI: -40}},
		{Advertisement: presence.Advertisement{Address: 2, RSSI: -41}},
	})
	c := &collector{}
	require.NoError(t, src.Start(c.handle, c.fail))

	require.Eventually(t, func() bool {
		_, errs := c.snapshot()
		return len(errs) == 1
	}, time.Second, time.Millisecond)

	advs, errs := c.snapshot()
	require.Len(t, advs, 2)
	assert.False(t, advs[0].Timestamp.IsZero(), "timestamp is stamped on emission")
	assert.True(t, errors.Is(errs[0], ErrReplayExhausted))

	// Stop after exhaustion is a no-op, and the items replay on restart.
	require.NoError(t, src.Stop())
	require.NoError(t, src.Start(c.handle, c.fail))
	require.Eventually(t, func() bool {
		advs, _ := c.snapshot()
		return len(advs) == 4
	}, time.Second, time.Millisecond)
}

func TestReplaySource_StopSuppressesFailure(t *testing.T) {
	feed := make(chan ReplayItem)
	src := NewReplaySource(feed)
	c := &collector{}

	require.NoError(t, src.Start(c.handle, c.fail))
	assert.ErrorIs(t, src.Start(c.handle, c.fail), ErrAlreadyRunning)

	feed <- ReplayItem{Advertisement: presence.Advertisement{Address: 7}}
	require.NoError(t, src.Stop())
	close(feed)
	time.Sleep(10 * time.Millisecond)

	advs, errs := c.snapshot()
	assert.Len(t, advs, 1)
	assert.Empty(t, errs)
}

func TestReplaySource_StopDuringDelay(t *testing.T) {
	src := NewReplaySourceFromItems([]ReplayItem{
		{Delay: time.Hour, Advertisement: presence.Advertisement{Address: 1}},
	})
	c := &collector{}
	require.NoError(t, src.Start(c.handle, c.fail))

	done := make(chan struct{})
	go func() {
		_ = src.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "Stop blocked on a pending delay")
	}
	advs, errs := c.snapshot()
	assert.Empty(t, advs)
	assert.Empty(t, errs)
}
