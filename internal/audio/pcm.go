// Package audio holds the small amount of PCM plumbing the agent does
// locally: 16-bit little-endian codec conversion, WAV framing, and an
// energy-based utterance detector used when no hosted turn detection is
// configured.
package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM16 converts 16-bit little-endian PCM bytes to float32 samples
// normalized to [-1, 1].
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}

// EncodePCM16 converts float32 samples to 16-bit little-endian PCM bytes,
// clamping out-of-range values.
func EncodePCM16(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		clamped := max(-1.0, min(1.0, s))
		val := int16(clamped * math.MaxInt16)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(val))
	}
	return buf
}
