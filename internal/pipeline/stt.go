package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/voicekit/agent/internal/audio"
	"github.com/voicekit/agent/internal/metrics"
)

// STTResult holds one utterance's transcription.
type STTResult struct {
	Text      string  `json:"text"`
	LatencyMs float64 `json:"latency_ms"`
}

// Transcriber produces a transcript from one complete utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (*STTResult, error)
}

// STTEventType identifies a lifecycle event on a live transcription stream.
type STTEventType string

const (
	// STTUtteranceStart fires when the service detects the user speaking.
	STTUtteranceStart STTEventType = "utterance_start"
	// STTUtteranceEnd fires when the service decides the user is done.
	STTUtteranceEnd STTEventType = "utterance_end"
	// STTTranscript carries transcript text; Final marks the settled form.
	STTTranscript STTEventType = "transcript"
	// STTError carries a non-fatal stream error.
	STTError STTEventType = "error"
)

// STTEvent is one lifecycle or transcript event from a live stream.
type STTEvent struct {
	Type  STTEventType
	Text  string
	Final bool
	// EndOfTurn marks a final transcript that also closes the turn.
	EndOfTurn bool
	Err       error
}

// STTCallback receives stream events. Callbacks for one stream are invoked
// sequentially from a single goroutine.
type STTCallback func(STTEvent)

// STTStream is a live transcription session: audio in, events out.
type STTStream interface {
	// Write sends one chunk of PCM16 audio.
	Write(pcm []byte) error
	// Close signals end of audio and waits for remaining events.
	Close() error
}

// LiveTranscriber opens streaming transcription sessions with service-side
// turn detection. Engines that don't implement it fall back to the local
// detector with batch transcription.
type LiveTranscriber interface {
	OpenStream(ctx context.Context, sampleRate int, onEvent STTCallback) (STTStream, error)
}

// STTRouter dispatches to the correct STT backend by engine name and wraps
// transcription with timing and error metrics.
type STTRouter struct {
	*Router[Transcriber]
}

// NewSTTRouter creates a router with the given fallback engine.
func NewSTTRouter(fallback string) *STTRouter {
	return &STTRouter{Router: NewRouter[Transcriber](fallback)}
}

// Transcribe routes to the correct backend and records stage metrics.
func (r *STTRouter) Transcribe(ctx context.Context, samples []float32, sampleRate int, engine string) (*STTResult, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := backend.Transcribe(ctx, samples, sampleRate)
	if err != nil {
		metrics.Errors.WithLabelValues("stt", "transcribe").Inc()
		return nil, err
	}
	metrics.StageDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds())
	return result, nil
}

// Live returns the streaming implementation for an engine, if it has one.
func (r *STTRouter) Live(engine string) (LiveTranscriber, bool) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, false
	}
	live, ok := backend.(LiveTranscriber)
	return live, ok
}

// MultipartSTTClient sends one utterance as multipart WAV to a
// whisper-compatible HTTP endpoint (self-hosted deployments).
type MultipartSTTClient struct {
	url      string
	endpoint string
	label    string
	client   *http.Client
}

// NewWhisperClient creates a client for whisper.cpp-style servers
// (/inference endpoint).
func NewWhisperClient(url string, poolSize int) *MultipartSTTClient {
	return &MultipartSTTClient{
		url:      url,
		endpoint: "/inference",
		label:    "whisper",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Transcribe sends float32 samples as multipart WAV and returns the transcript.
func (c *MultipartSTTClient) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*STTResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartAudio(samples, sampleRate)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.label, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s status %d: %s", c.label, resp.StatusCode, respBody)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.label, err)
	}

	return &STTResult{
		Text:      result.Text,
		LatencyMs: float64(time.Since(start).Milliseconds()),
	}, nil
}

func buildMultipartAudio(samples []float32, sampleRate int) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, sampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
