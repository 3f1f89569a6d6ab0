package presence

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxAddress is the largest valid 48-bit radio address.
const MaxAddress uint64 = 1<<48 - 1

// DeviceKey identifies one device in the Store.
//
// Exactly one of the fields is meaningful: StableID when set, Address otherwise.
// DeviceKey is comparable and used directly as a map key.
type DeviceKey struct {
	Address  uint64
	StableID string
}

// AddressKey returns the key for an address-keyed device.
func AddressKey(addr uint64) DeviceKey {
	return DeviceKey{Address: addr}
}

// StableKey returns the key for a device with a resolved stable identity.
func StableKey(id string) DeviceKey {
	return DeviceKey{StableID: id}
}

// IsStable reports whether the key carries a stable identity.
func (k DeviceKey) IsStable() bool {
	return k.StableID != ""
}

// String returns the stable identity, or the address in upper-case hex.
func (k DeviceKey) String() string {
	if k.StableID != "" {
		return k.StableID
	}
	return FormatAddress(k.Address)
}

// FormatAddress renders a 48-bit address as 12 upper-case hex digits.
func FormatAddress(addr uint64) string {
	return fmt.Sprintf("%012X", addr)
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF", "aa-bb-cc-dd-ee-ff" or
// "AABBCCDDEEFF" into a 48-bit address.
func ParseAddress(s string) (uint64, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(strings.TrimSpace(s))
	if clean == "" || len(clean) > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	v, err := strconv.ParseUint(clean, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return v, nil
}

// CanonicalKeyText normalises user-supplied device text such as a filter
// or a forward-list entry. Twelve hex digits in any separator style become
// the FormatAddress form; anything else is trimmed and upper-cased, so a
// short stable id like "beef" stays an id.
func CanonicalKeyText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	digits := strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	if len(digits) == 12 {
		if addr, err := ParseAddress(digits); err == nil && addr != 0 {
			return FormatAddress(addr)
		}
	}
	return strings.ToUpper(s)
}

// MatchesKeyText reports whether canon (from CanonicalKeyText) names r,
// either by its key or by its current address.
func (r Record) MatchesKeyText(canon string) bool {
	return canon != "" && (canon == strings.ToUpper(r.Key.String()) || canon == FormatAddress(r.Address))
}
