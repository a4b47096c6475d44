// Package codec implements ITU-T G.711 µ-law companding between 8-bit
// telephony samples and 16-bit linear PCM16.
package codec

// ulawBias is added before segment lookup, per the G.711 standard.
const ulawBias = 0x84

// ulawMax is the largest magnitude a linear sample may have before
// encoding; larger values are clamped per the ITU-T spec.
const ulawMax = 32635

// ulawSegmentTable maps the top byte of a biased magnitude to its
// exponent (segment number).
var ulawSegmentTable = [256]byte{
	0, 0, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 3, 3, 3, 3,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
}

// decodeTable is a precomputed 256-entry µ-law→PCM16 lookup table, built
// once at package init per §4.1's SHOULD.
var decodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		decodeTable[i] = ulawToLinear(byte(i))
	}
}

func ulawToLinear(ulawByte byte) int16 {
	ulaw := ^ulawByte
	sign := ulaw & 0x80
	exponent := (ulaw & 0x70) >> 4
	mantissa := ulaw & 0x0F

	magnitude := (int(mantissa)<<1+33)<<exponent - 33
	// The formula above yields the 14-bit G.711 magnitude; scale it to
	// the 16-bit range that linearToUlaw (bias 0x84, clamp 32635) expects.
	magnitude <<= 2

	if sign != 0 {
		magnitude = -magnitude
	}
	return int16(magnitude)
}

func linearToUlaw(sample int16) byte {
	sign := byte(0x00)
	v := int(sample)
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > ulawMax {
		v = ulawMax
	}
	v += ulawBias

	exponent := int(ulawSegmentTable[(v>>7)&0xFF])
	var mantissa int
	if exponent < 7 {
		mantissa = (v >> uint(exponent+3)) & 0x0F
	} else {
		mantissa = (v >> 10) & 0x0F
	}

	return ^(sign | byte(exponent<<4) | byte(mantissa))
}

// Decode converts a µ-law byte sequence to little-endian PCM16, producing
// 2 output bytes per input byte via a precomputed lookup table.
func Decode(ulaw []byte) []byte {
	pcm := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		s := decodeTable[b]
		pcm[i*2] = byte(s)
		pcm[i*2+1] = byte(s >> 8)
	}
	return pcm
}

// Encode converts little-endian PCM16 to µ-law. An odd trailing byte is
// discarded per §4.1.
func Encode(pcm []byte) []byte {
	n := len(pcm) / 2
	ulaw := make([]byte, n)
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		ulaw[i] = linearToUlaw(s)
	}
	return ulaw
}
