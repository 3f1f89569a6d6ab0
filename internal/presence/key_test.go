package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceKey_String(t *testing.T) {
	assert.Equal(t, "0000AABBCCDD", AddressKey(0xAABBCCDD).String())
	assert.Equal(t, "kitchen-tag", StableKey("kitchen-tag").String())
	assert.True(t, StableKey("x").IsStable())
	assert.False(t, AddressKey(1).IsStable())
}

func TestDeviceKey_Comparable(t *testing.T) {
	m := map[DeviceKey]int{AddressKey(1): 1, StableKey("a"): 2}
	assert.Equal(t, 1, m[AddressKey(1)])
	assert.Equal(t, 2, m[StableKey("a")])
	assert.NotEqual(t, AddressKey(1), StableKey("000000000001"))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"AA:BB:CC:DD:EE:FF", 0xAABBCCDDEEFF},
		{"aa:bb:cc:dd:ee:ff", 0xAABBCCDDEEFF},
		{"aa-bb-cc-dd-ee-ff", 0xAABBCCDDEEFF},
		{"AABBCCDDEEFF", 0xAABBCCDDEEFF},
		{" 0000AABB ", 0xAABB},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, mustParse(t, FormatAddress(got)))
		})
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	for _, in := range []string{"", "GG:00:00:00:00:00", "AABBCCDDEEFF00", "::"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAddress(in)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}
}

func mustParse(t *testing.T, s string) uint64 {
	t.Helper()
	v, err := ParseAddress(s)
	require.NoError(t, err)
	return v
}

func TestCanonicalKeyText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aa:bb:cc:dd:ee:ff", "AABBCCDDEEFF"},
		{" AA-BB-CC-DD-EE-FF ", "AABBCCDDEEFF"},
		{"aabbccddeeff", "AABBCCDDEEFF"},
		{"kitchen-tag", "KITCHEN-TAG"},
		{"beef", "BEEF"},
		{"zzzzzzzzzzzz", "ZZZZZZZZZZZZ"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalKeyText(tt.in), tt.in)
	}
}

func TestRecord_MatchesKeyText(t *testing.T) {
	byAddr := Record{Key: AddressKey(0xAABBCCDDEEFF), Address: 0xAABBCCDDEEFF}
	byID := Record{Key: StableKey("kitchen-tag"), Address: 0x010203040506}

	assert.True(t, byAddr.MatchesKeyText("AABBCCDDEEFF"))
	assert.True(t, byID.MatchesKeyText("KITCHEN-TAG"))
	assert.True(t, byID.MatchesKeyText("010203040506"), "current address also matches")
	assert.False(t, byID.MatchesKeyText("AABBCCDDEEFF"))
	assert.False(t, byAddr.MatchesKeyText(""))
}
