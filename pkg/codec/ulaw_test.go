package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeEncodeRoundTrip verifies that every µ-law byte survives a
// decode→encode round trip unchanged, per §8's codec round-trip
// property.
func TestDecodeEncodeRoundTrip(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	pcm := Decode(all)
	require.Len(t, pcm, 512, "decode must produce 2 bytes per input byte")

	back := Encode(pcm)
	require.Len(t, back, 256)

	for i := range all {
		assert.Equalf(t, all[i], back[i], "byte %d did not round-trip", i)
	}
}

func TestDecodeLength(t *testing.T) {
	in := []byte{0x00, 0xFF, 0x7F, 0x80}
	out := Decode(in)
	assert.Len(t, out, 8)
}

func TestEncodeDropsOddTrailingByte(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03} // one whole sample plus a stray byte
	out := Encode(pcm)
	assert.Len(t, out, 1)
}

func TestEncodeSilenceIsMaxUlawByte(t *testing.T) {
	pcm := make([]byte, 4) // two zero samples
	out := Encode(pcm)
	require.Len(t, out, 2)
	for _, b := range out {
		assert.Equal(t, byte(0xFF), b, "PCM silence must encode to µ-law 0xFF")
	}
}

func TestEncodeClampsExtremeSamples(t *testing.T) {
	pcm := []byte{0x00, 0x80} // int16 little-endian -32768
	out := Encode(pcm)
	require.Len(t, out, 1)
	// Must decode back to something close to -32635 (post clamp), not garbage.
	decoded := int16(decodeTable[out[0]])
	assert.Less(t, decoded, int16(-32000))
}
