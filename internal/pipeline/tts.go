package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicekit/agent/internal/metrics"
)

// TTSOptions holds per-call synthesis tuning.
type TTSOptions struct {
	Voice string
	Speed float64
}

// TTSSynthesizer produces audio from text.
type TTSSynthesizer interface {
	SynthesizeAudio(ctx context.Context, text string, opts TTSOptions) ([]byte, error)
}

// TTSResult holds synthesized audio with timing.
type TTSResult struct {
	Audio     []byte  `json:"-"`
	LatencyMs float64 `json:"latency_ms"`
}

// TTSRouter dispatches by engine name and wraps synthesis with timing and
// error metrics.
type TTSRouter struct {
	*Router[TTSSynthesizer]
}

// NewTTSRouter creates a router with the given fallback engine.
func NewTTSRouter(fallback string) *TTSRouter {
	return &TTSRouter{Router: NewRouter[TTSSynthesizer](fallback)}
}

// Synthesize routes to the backend and records stage metrics.
func (r *TTSRouter) Synthesize(ctx context.Context, text, engine string, opts TTSOptions) (*TTSResult, error) {
	start := time.Now()

	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	audioData, err := backend.SynthesizeAudio(ctx, text, opts)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "synth").Inc()
		return nil, err
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())

	return &TTSResult{
		Audio:     audioData,
		LatencyMs: float64(latency.Milliseconds()),
	}, nil
}

// --- Cartesia backend (hosted, /tts/bytes, returns WAV) ---

type cartesiaSynthesizer struct {
	apiKey     string
	model      string
	voiceID    string
	sampleRate int
	client     *http.Client
}

// NewCartesiaSynthesizer creates a client for the Cartesia bytes endpoint.
func NewCartesiaSynthesizer(apiKey, model, voiceID string, sampleRate int, client *http.Client) TTSSynthesizer {
	return &cartesiaSynthesizer{
		apiKey:     apiKey,
		model:      model,
		voiceID:    voiceID,
		sampleRate: sampleRate,
		client:     client,
	}
}

func (c *cartesiaSynthesizer) SynthesizeAudio(ctx context.Context, text string, opts TTSOptions) ([]byte, error) {
	voice := c.voiceID
	if opts.Voice != "" {
		voice = opts.Voice
	}

	type voiceRef struct {
		Mode string `json:"mode"`
		ID   string `json:"id"`
	}
	type outputFormat struct {
		Container  string `json:"container"`
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sample_rate"`
	}
	body, err := json.Marshal(struct {
		ModelID      string       `json:"model_id"`
		Transcript   string       `json:"transcript"`
		Voice        voiceRef     `json:"voice"`
		OutputFormat outputFormat `json:"output_format"`
		Language     string       `json:"language"`
	}{
		ModelID:      c.model,
		Transcript:   text,
		Voice:        voiceRef{Mode: "id", ID: voice},
		OutputFormat: outputFormat{Container: "wav", Encoding: "pcm_s16le", SampleRate: c.sampleRate},
		Language:     "en",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal cartesia request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.cartesia.ai/tts/bytes", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create cartesia request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Cartesia-Version", "2024-06-10")

	return doTTSRequest(c.client, req)
}

// --- ElevenLabs backend (hosted, returns MP3) ---

type elevenlabsSynthesizer struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

// NewElevenLabsSynthesizer creates a client for the ElevenLabs API.
func NewElevenLabsSynthesizer(apiKey, voiceID, modelID string, client *http.Client) TTSSynthesizer {
	return &elevenlabsSynthesizer{apiKey: apiKey, voiceID: voiceID, modelID: modelID, client: client}
}

func (e *elevenlabsSynthesizer) SynthesizeAudio(ctx context.Context, text string, opts TTSOptions) ([]byte, error) {
	voice := e.voiceID
	if opts.Voice != "" {
		voice = opts.Voice
	}
	type voiceSettings struct {
		Speed float64 `json:"speed,omitempty"`
	}
	payload := struct {
		Text          string         `json:"text"`
		ModelID       string         `json:"model_id"`
		VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	}{Text: text, ModelID: e.modelID}
	if opts.Speed > 0 {
		payload.VoiceSettings = &voiceSettings{Speed: opts.Speed}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", voice)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	return doTTSRequest(e.client, req)
}

func doTTSRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts status %d: %s", resp.StatusCode, body)
	}

	return io.ReadAll(resp.Body)
}
