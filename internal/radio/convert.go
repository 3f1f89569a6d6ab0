package radio

import (
	"math"
	"time"

	"github.com/go-ble/ble"

	"github.com/nerrad567/bluerial/internal/presence"
)

// bleAdvertisement is the subset of ble.Advertisement the converter reads.
type bleAdvertisement interface {
	Addr() ble.Addr
	RSSI() int
	LocalName() string
	ManufacturerData() []byte
}

// convert maps a go-ble advertisement onto the raw presence event.
//
// An unparseable address converts to zero, which Advertisement.Validate
// rejects, so the watcher counts it as invalid instead of it vanishing here.
func convert(a bleAdvertisement, at time.Time) presence.Advertisement {
	var addr uint64
	if a.Addr() != nil {
		if v, err := presence.ParseAddress(a.Addr().String()); err == nil {
			addr = v
		}
	}

	var md []byte
	if raw := a.ManufacturerData(); len(raw) > 0 {
		md = make([]byte, len(raw))
		copy(md, raw)
	}

	return presence.Advertisement{
		Address:          addr,
		Timestamp:        at,
		RSSI:             clampRSSI(a.RSSI()),
		LocalName:        a.LocalName(),
		ManufacturerData: md,
	}
}

func clampRSSI(v int) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}
