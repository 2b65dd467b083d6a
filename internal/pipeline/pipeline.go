package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/voicekit/agent/internal/audio"
	"github.com/voicekit/agent/internal/latency"
	"github.com/voicekit/agent/internal/metrics"
)

// Config holds pipeline configuration for one session.
type Config struct {
	STTClient *STTRouter
	LLMClient *LLMRouter
	TTSClient *TTSRouter
	VADConfig audio.VADConfig
	Collector *latency.Collector

	SessionID    string
	SystemPrompt string
	Greeting     string

	STTEngine string
	LLMEngine string
	LLMModel  string
	TTSEngine string
	TTSVoice  string
	TTSSpeed  float64

	SampleRate           int
	InterSentencePauseMs int
}

// turn holds one user→assistant exchange for conversation history.
type turn struct {
	user      string
	assistant string
}

// Event represents a pipeline output sent back to the client.
type Event struct {
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	Token     string  `json:"token,omitempty"`
	Final     bool    `json:"final,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
	Audio     []byte  `json:"-"`
}

// EventCallback is invoked for each pipeline event (transcript, token, audio, error).
type EventCallback func(Event)

// Pipeline processes a single session through STT → LLM → TTS, feeding the
// turn lifecycle into the latency collector as it goes. When the configured
// STT engine supports live streaming, audio bypasses the local VAD and the
// service's speech events drive the turn boundaries instead.
type Pipeline struct {
	cfg     Config
	vad     *audio.VAD
	history []turn
	stream  STTStream
	// segments accumulates final transcript fragments for the open turn in
	// streaming mode. Touched only on the stream's read goroutine.
	segments []string
}

// New creates a pipeline for a single session.
func New(cfg Config) *Pipeline {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = cfg.VADConfig.SampleRate
	}
	return &Pipeline{
		cfg: cfg,
		vad: audio.NewVAD(cfg.VADConfig),
	}
}

// Start opens the live STT stream when the engine supports it. Returns false
// when the pipeline will fall back to local VAD with batch transcription.
func (p *Pipeline) Start(ctx context.Context, onEvent EventCallback) (bool, error) {
	live, ok := p.cfg.STTClient.Live(p.cfg.STTEngine)
	if !ok {
		return false, nil
	}

	stream, err := live.OpenStream(ctx, p.cfg.SampleRate, func(ev STTEvent) {
		p.handleSTTEvent(ctx, ev, onEvent)
	})
	if err != nil {
		return false, fmt.Errorf("stt stream: %w", err)
	}
	p.stream = stream
	return true, nil
}

// handleSTTEvent maps live STT events onto the turn lifecycle. Responding
// happens inline on the read goroutine, which naturally serializes turns.
func (p *Pipeline) handleSTTEvent(ctx context.Context, ev STTEvent, onEvent EventCallback) {
	c := p.cfg.Collector
	switch ev.Type {
	case STTUtteranceStart:
		p.segments = p.segments[:0]
		c.UtteranceStarted(c.Now())

	case STTUtteranceEnd:
		c.UtteranceEnded(c.Now())

	case STTTranscript:
		onEvent(Event{Type: "transcript", Text: ev.Text, Final: ev.Final})
		if ev.Final {
			p.segments = append(p.segments, ev.Text)
		}
		if !ev.EndOfTurn {
			return
		}
		transcript := strings.TrimSpace(strings.Join(p.segments, " "))
		p.segments = p.segments[:0]
		if transcript == "" {
			return
		}
		if err := p.respond(ctx, transcript, onEvent); err != nil {
			slog.Error("respond", "session_id", p.cfg.SessionID, "error", err)
			onEvent(Event{Type: "error", Text: err.Error()})
		}

	case STTError:
		slog.Error("stt stream", "session_id", p.cfg.SessionID, "error", ev.Err)
		onEvent(Event{Type: "error", Text: ev.Err.Error()})
	}
}

// ProcessChunk handles one PCM16 audio chunk from the client. In streaming
// mode the chunk is forwarded to the live STT service; otherwise the local
// VAD segments speech and end-of-utterance triggers batch transcription.
func (p *Pipeline) ProcessChunk(ctx context.Context, pcm []byte, onEvent EventCallback) error {
	metrics.AudioChunks.Inc()

	if p.stream != nil {
		return p.stream.Write(pcm)
	}

	samples := audio.DecodePCM16(pcm)
	if p.cfg.SampleRate != p.cfg.VADConfig.SampleRate {
		samples = audio.Resample(samples, p.cfg.SampleRate, p.cfg.VADConfig.SampleRate)
	}

	c := p.cfg.Collector
	result := p.vad.Process(samples)
	if result.SpeechStarted {
		c.UtteranceStarted(c.Now())
	}
	if !result.SpeechEnded {
		return nil
	}
	c.UtteranceEnded(c.Now())
	return p.transcribeAndRespond(ctx, result.Audio, onEvent)
}

// Flush processes any speech still buffered in the local VAD.
func (p *Pipeline) Flush(ctx context.Context, onEvent EventCallback) error {
	if p.stream != nil {
		return nil
	}
	remaining := p.vad.Flush()
	if len(remaining) == 0 {
		return nil
	}
	c := p.cfg.Collector
	c.UtteranceEnded(c.Now())
	return p.transcribeAndRespond(ctx, remaining, onEvent)
}

// Greet speaks the configured greeting before any user speech. The turn is
// opened and closed at the same offset so its user-side intervals are zero.
func (p *Pipeline) Greet(ctx context.Context, onEvent EventCallback) error {
	if p.cfg.Greeting == "" {
		return nil
	}
	c := p.cfg.Collector
	now := c.Now()
	c.UtteranceStarted(now)
	c.UtteranceEnded(now)
	return p.respond(ctx, p.cfg.Greeting, onEvent)
}

// Close shuts down the live STT stream if one is open.
func (p *Pipeline) Close() error {
	if p.stream == nil {
		return nil
	}
	return p.stream.Close()
}

func (p *Pipeline) transcribeAndRespond(ctx context.Context, speech []float32, onEvent EventCallback) error {
	sttResult, err := p.cfg.STTClient.Transcribe(ctx, speech, p.cfg.VADConfig.SampleRate, p.cfg.STTEngine)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}

	transcript := strings.TrimSpace(sttResult.Text)
	if transcript == "" {
		return nil
	}

	slog.Info("transcript", "session_id", p.cfg.SessionID, "text", transcript, "stt_ms", sttResult.LatencyMs)
	onEvent(Event{Type: "transcript", Text: transcript, Final: true, LatencyMs: sttResult.LatencyMs})
	return p.respond(ctx, transcript, onEvent)
}

// respond runs the LLM → TTS half of a turn for a finalized transcript,
// recording processing start, first token, first audio byte, and completion.
func (p *Pipeline) respond(ctx context.Context, transcript string, onEvent EventCallback) error {
	c := p.cfg.Collector
	c.SetUserText(transcript)
	c.ProcessingStarted(c.Now())

	llmResult, err := p.streamLLMWithTTS(ctx, p.formatInput(transcript), onEvent)
	if err != nil {
		c.ResponseCompleted(c.Now())
		return fmt.Errorf("llm+tts: %w", err)
	}

	c.SetAgentText(llmResult.Text)
	c.ResponseCompleted(c.Now())

	p.history = append(p.history, turn{user: transcript, assistant: llmResult.Text})

	slog.Info("turn_done",
		"session_id", p.cfg.SessionID,
		"llm_ms", llmResult.LatencyMs,
		"ttft_ms", llmResult.TimeToFirstTokenMs,
	)
	onEvent(Event{Type: "agent_done", Text: llmResult.Text, LatencyMs: llmResult.LatencyMs})
	return nil
}

// formatInput prepends conversation history to the current message.
func (p *Pipeline) formatInput(current string) string {
	if len(p.history) == 0 {
		return current
	}
	var b strings.Builder
	for _, t := range p.history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.user, t.assistant)
	}
	fmt.Fprintf(&b, "User: %s", current)
	return b.String()
}

// streamLLMWithTTS runs LLM streaming and TTS synthesis concurrently using a
// producer/consumer pattern. The LLM streams tokens into a sentenceBuffer
// (producer); when a sentence boundary is detected, the complete sentence is
// sent to a channel. A goroutine (consumer) reads sentences and synthesizes
// audio in parallel, so the first audio is ready before the LLM finishes.
func (p *Pipeline) streamLLMWithTTS(ctx context.Context, input string, onEvent EventCallback) (*LLMResult, error) {
	c := p.cfg.Collector
	sentenceCh := make(chan string, 4)
	var ttsWg sync.WaitGroup

	ttsWg.Add(1)
	go func() {
		defer ttsWg.Done()
		p.consumeSentences(ctx, sentenceCh, onEvent)
	}()

	var sb sentenceBuffer
	var sawToken bool

	llmResult, err := p.cfg.LLMClient.Chat(ctx, input, p.cfg.SystemPrompt, p.cfg.LLMModel, p.cfg.LLMEngine, func(token string) {
		if !sawToken {
			sawToken = true
			c.FirstToken(c.Now())
		}
		onEvent(Event{Type: "token", Token: token})
		if s := sb.Add(token); s != "" {
			sentenceCh <- s
		}
	})

	if remainder := sb.Flush(); remainder != "" {
		sentenceCh <- remainder
	}
	close(sentenceCh)
	ttsWg.Wait()

	if err != nil {
		return nil, err
	}
	return llmResult, nil
}

func (p *Pipeline) consumeSentences(ctx context.Context, sentenceCh <-chan string, onEvent EventCallback) {
	c := p.cfg.Collector
	opts := TTSOptions{Voice: p.cfg.TTSVoice, Speed: p.cfg.TTSSpeed}
	var sawAudio bool

	var failed bool
	for sentence := range sentenceCh {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || failed {
			continue
		}
		ttsResult, err := p.cfg.TTSClient.Synthesize(ctx, sentence, p.cfg.TTSEngine, opts)
		if err != nil {
			slog.Error("tts sentence", "session_id", p.cfg.SessionID, "error", err, "text", sentence)
			onEvent(Event{Type: "error", Text: err.Error()})
			// Keep receiving so the token callback never blocks on a full
			// sentence channel; remaining sentences are discarded.
			failed = true
			continue
		}
		if !sawAudio && len(ttsResult.Audio) > 0 {
			sawAudio = true
			c.FirstAudioByte(c.Now())
		}
		onEvent(Event{Type: "audio", Audio: ttsResult.Audio, LatencyMs: ttsResult.LatencyMs})

		if p.cfg.InterSentencePauseMs > 0 {
			onEvent(Event{Type: "audio", Audio: audio.SilenceWAV(p.cfg.InterSentencePauseMs, 24000)})
		}
	}
}
