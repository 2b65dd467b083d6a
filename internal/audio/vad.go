package audio

import (
	"math"
	"time"
)

// VADConfig controls the energy-based utterance detector.
type VADConfig struct {
	SpeechThresholdDB float64
	SilenceTimeout    time.Duration
	MinSpeechDuration time.Duration
	PreSpeechBuffer   time.Duration
	SampleRate        int
}

// DefaultVADConfig returns defaults tuned for close-mic conversational audio.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB: -30,
		SilenceTimeout:    800 * time.Millisecond,
		MinSpeechDuration: 300 * time.Millisecond,
		PreSpeechBuffer:   300 * time.Millisecond,
		SampleRate:        16000,
	}
}

// VAD detects utterance boundaries from signal energy. Time advances with
// the samples fed in, not the wall clock, so the detector is deterministic
// for a given audio stream.
type VAD struct {
	cfg VADConfig

	pos           int // samples processed
	isSpeech      bool
	speechStart   int // sample offset where the utterance began
	lastSpeechPos int

	buffer       []float32
	preSpeech    []float32
	preSpeechLen int
}

// NewVAD creates a detector with the given config.
func NewVAD(cfg VADConfig) *VAD {
	preSpeechSamples := int(cfg.PreSpeechBuffer.Seconds() * float64(cfg.SampleRate))
	return &VAD{
		cfg:          cfg,
		preSpeechLen: preSpeechSamples,
		preSpeech:    make([]float32, 0, preSpeechSamples),
	}
}

// VADResult reports utterance boundary events for one processed chunk.
// SpeechStarted fires on the transition into speech; SpeechEnded carries the
// full utterance audio (with pre-speech padding) once silence has held long
// enough.
type VADResult struct {
	SpeechStarted bool
	SpeechEnded   bool
	Audio         []float32
}

// Process feeds one audio chunk into the detector.
func (v *VAD) Process(samples []float32) VADResult {
	energyDB := computeEnergyDB(samples)
	v.pos += len(samples)

	if energyDB >= v.cfg.SpeechThresholdDB {
		return v.handleSpeech(samples)
	}
	return v.handleSilence(samples)
}

func (v *VAD) handleSpeech(samples []float32) VADResult {
	started := false
	if !v.isSpeech {
		v.isSpeech = true
		started = true
		v.speechStart = v.pos - len(samples)
		v.buffer = append(v.buffer, v.preSpeech...)
	}
	v.lastSpeechPos = v.pos
	v.buffer = append(v.buffer, samples...)
	v.preSpeech = v.preSpeech[:0]
	return VADResult{SpeechStarted: started}
}

func (v *VAD) handleSilence(samples []float32) VADResult {
	v.updatePreSpeech(samples)

	if !v.isSpeech {
		return VADResult{}
	}

	v.buffer = append(v.buffer, samples...)

	if v.samplesToDuration(v.pos-v.lastSpeechPos) < v.cfg.SilenceTimeout {
		return VADResult{}
	}

	v.isSpeech = false

	if v.samplesToDuration(v.lastSpeechPos-v.speechStart) < v.cfg.MinSpeechDuration {
		v.buffer = v.buffer[:0]
		return VADResult{}
	}

	utterance := v.buffer
	v.buffer = nil
	return VADResult{SpeechEnded: true, Audio: utterance}
}

func (v *VAD) updatePreSpeech(samples []float32) {
	v.preSpeech = append(v.preSpeech, samples...)
	if len(v.preSpeech) > v.preSpeechLen {
		excess := len(v.preSpeech) - v.preSpeechLen
		v.preSpeech = v.preSpeech[excess:]
	}
}

// Flush returns any buffered utterance audio and resets the detector.
func (v *VAD) Flush() []float32 {
	if len(v.buffer) == 0 {
		return nil
	}
	utterance := v.buffer
	v.buffer = nil
	v.isSpeech = false
	return utterance
}

func (v *VAD) samplesToDuration(n int) time.Duration {
	return time.Duration(float64(n) / float64(v.cfg.SampleRate) * float64(time.Second))
}

func computeEnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
