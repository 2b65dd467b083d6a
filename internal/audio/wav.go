package audio

import "encoding/binary"

// SamplesToWAV wraps float32 PCM samples in a mono 16-bit WAV container.
func SamplesToWAV(samples []float32, sampleRate int) []byte {
	pcm := EncodePCM16(samples)
	return PCMToWAV(pcm, sampleRate)
}

// PCMToWAV prepends a mono 16-bit WAV header to raw PCM16 bytes.
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	totalLen := 44 + len(pcm)

	buf := make([]byte, 44, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))

	return append(buf, pcm...)
}

// SilenceWAV returns a WAV clip of silence with the given duration, used for
// inter-sentence pauses in synthesized speech.
func SilenceWAV(ms, sampleRate int) []byte {
	numSamples := sampleRate * ms / 1000
	return PCMToWAV(make([]byte, numSamples*2), sampleRate)
}
