package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sine(freq float64, sampleRate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate)))
	}
	return out
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := sine(440, 16000, 1600)
	out := Resample(in, 16000, 16000)
	assert.Equal(t, in, out)
}

func TestResampleHalvesLength(t *testing.T) {
	in := sine(440, 32000, 3200)
	out := Resample(in, 32000, 16000)
	assert.Equal(t, 1600, len(out))
}

func TestResampleDoublesLength(t *testing.T) {
	in := sine(440, 8000, 800)
	out := Resample(in, 8000, 16000)
	assert.Equal(t, 1600, len(out))
}

func TestResamplePreservesAmplitude(t *testing.T) {
	in := sine(440, 48000, 4800)
	out := Resample(in, 48000, 16000)

	var peak float32
	for _, s := range out {
		if s > peak {
			peak = s
		}
	}
	// 440 Hz is far below the 8 kHz cutoff; the tone should survive the
	// anti-aliasing filter nearly intact.
	assert.InDelta(t, 1.0, float64(peak), 0.1)
}
