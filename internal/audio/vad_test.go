package audio

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB: -30,
		SilenceTimeout:    200 * time.Millisecond,
		MinSpeechDuration: 100 * time.Millisecond,
		PreSpeechBuffer:   50 * time.Millisecond,
		SampleRate:        16000,
	}
}

// chunk of n milliseconds at the test sample rate.
func toneChunk(ms int, amplitude float32) []float32 {
	n := 16000 * ms / 1000
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return samples
}

func TestVADDetectsUtterance(t *testing.T) {
	v := NewVAD(testConfig())

	res := v.Process(toneChunk(150, 0.5))
	assert.True(t, res.SpeechStarted)
	assert.False(t, res.SpeechEnded)

	// Continued speech does not restart.
	res = v.Process(toneChunk(150, 0.5))
	assert.False(t, res.SpeechStarted)

	// Silence shorter than the timeout keeps the utterance open.
	res = v.Process(toneChunk(100, 0))
	assert.False(t, res.SpeechEnded)

	// Crossing the silence timeout closes it.
	res = v.Process(toneChunk(150, 0))
	require.True(t, res.SpeechEnded)
	assert.NotEmpty(t, res.Audio)
}

func TestVADIgnoresShortBlips(t *testing.T) {
	v := NewVAD(testConfig())

	res := v.Process(toneChunk(50, 0.5)) // below MinSpeechDuration
	assert.True(t, res.SpeechStarted)

	res = v.Process(toneChunk(300, 0))
	assert.False(t, res.SpeechEnded, "sub-minimum utterances are dropped")
}

func TestVADFlushReturnsBuffered(t *testing.T) {
	v := NewVAD(testConfig())

	v.Process(toneChunk(150, 0.5))
	audio := v.Flush()
	assert.NotEmpty(t, audio)
	assert.Empty(t, v.Flush())
}

func TestVADDeterministicAcrossRuns(t *testing.T) {
	run := func() int {
		v := NewVAD(testConfig())
		v.Process(toneChunk(150, 0.5))
		res := v.Process(toneChunk(300, 0))
		require.True(t, res.SpeechEnded)
		return len(res.Audio)
	}
	assert.Equal(t, run(), run(), "sample-clock VAD must not depend on wall time")
}

func TestPCM16RoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1.0, -1.0}
	decoded := DecodePCM16(EncodePCM16(samples))
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 0.001)
	}
}

func TestWAVHeader(t *testing.T) {
	wav := SamplesToWAV(make([]float32, 160), 16000)
	require.Len(t, wav, 44+320)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(320), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestSilenceWAV(t *testing.T) {
	wav := SilenceWAV(100, 24000)
	assert.Len(t, wav, 44+2400*2)
	for _, b := range wav[44:] {
		require.Zero(t, b)
	}
}
