// Package resample implements the fixed-ratio linear resampling used to
// bridge 8 kHz telephony audio and 24 kHz service audio. It operates on
// little-endian PCM16 byte sequences; odd trailing bytes are ignored.
package resample

import "encoding/binary"

// Upsample8to24 upsamples little-endian PCM16 from 8 kHz to 24 kHz by
// emitting 3 output samples per input sample via linear interpolation.
// The final input sample is replicated three times. Output length is
// exactly 3 × input_samples × 2 bytes.
func Upsample8to24(pcm8k []byte) []byte {
	samples := len(pcm8k) / 2
	if samples == 0 {
		return []byte{}
	}

	out := make([]byte, samples*3*2)
	for i := 0; i < samples-1; i++ {
		cur := readSample(pcm8k, i)
		next := readSample(pcm8k, i+1)

		outIdx := i * 3
		writeSample(out, outIdx, cur)
		writeSample(out, outIdx+1, int16((int32(cur)*2+int32(next))/3))
		writeSample(out, outIdx+2, int16((int32(cur)+int32(next)*2)/3))
	}

	last := readSample(pcm8k, samples-1)
	outIdx := (samples - 1) * 3
	writeSample(out, outIdx, last)
	writeSample(out, outIdx+1, last)
	writeSample(out, outIdx+2, last)

	return out
}

// Downsample24to8 downsamples little-endian PCM16 from 24 kHz to 8 kHz,
// emitting one output sample per group of three input samples computed
// as their integer mean. A trailing partial group is discarded. Output
// length is exactly ⌊input_samples/3⌋ × 2 bytes.
func Downsample24to8(pcm24k []byte) []byte {
	samples := len(pcm24k) / 2
	groups := samples / 3
	out := make([]byte, groups*2)

	for i := 0; i < groups; i++ {
		in := i * 3
		s1 := int32(readSample(pcm24k, in))
		s2 := int32(readSample(pcm24k, in+1))
		s3 := int32(readSample(pcm24k, in+2))
		writeSample(out, i, int16((s1+s2+s3)/3))
	}

	return out
}

func readSample(data []byte, sampleIdx int) int16 {
	return int16(binary.LittleEndian.Uint16(data[sampleIdx*2:]))
}

func writeSample(data []byte, sampleIdx int, v int16) {
	binary.LittleEndian.PutUint16(data[sampleIdx*2:], uint16(v))
}
