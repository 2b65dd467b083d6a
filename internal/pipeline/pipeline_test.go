package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicekit/agent/internal/latency"
)

type captureSink struct {
	mu    sync.Mutex
	turns []latency.Turn
}

func (s *captureSink) Append(t latency.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
}

func (s *captureSink) all() []latency.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]latency.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// fakeLLM streams canned tokens.
type fakeLLM struct {
	tokens []string
}

func (f *fakeLLM) Chat(ctx context.Context, userMessage, systemPrompt, model string, onToken TokenCallback) (*LLMResult, error) {
	var text string
	for _, tok := range f.tokens {
		onToken(tok)
		text += tok
	}
	return &LLMResult{Text: text}, nil
}

// fakeTTS returns fixed audio for any sentence.
type fakeTTS struct{}

func (fakeTTS) SynthesizeAudio(ctx context.Context, text string, opts TTSOptions) ([]byte, error) {
	return []byte{1, 2, 3, 4}, nil
}

// failTTS errors on every sentence.
type failTTS struct{}

func (failTTS) SynthesizeAudio(ctx context.Context, text string, opts TTSOptions) ([]byte, error) {
	return nil, errors.New("synthesis unavailable")
}

// fakeSTT returns a fixed transcript for batch transcription.
type fakeSTT struct {
	text string
}

func (f *fakeSTT) Transcribe(ctx context.Context, samples []float32, sampleRate int) (*STTResult, error) {
	return &STTResult{Text: f.text}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) cb() EventCallback {
	return func(ev Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	}
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func newTestPipeline(sink latency.Sink) *Pipeline {
	llm := NewLLMRouter("fake", 100)
	llm.RegisterClient("fake", &fakeLLM{tokens: []string{"Hi", " there."}}, "fake-model")

	tts := NewTTSRouter("fake")
	tts.Register("fake", fakeTTS{})

	stt := NewSTTRouter("fake")
	stt.Register("fake", &fakeSTT{text: "what can you do"})

	return New(Config{
		STTClient: stt,
		LLMClient: llm,
		TTSClient: tts,
		Collector: latency.NewCollector(latency.NewSession(), sink),
		SessionID: "test-session",
		STTEngine: "fake",
		LLMEngine: "fake",
		TTSEngine: "fake",
	})
}

func TestStreamingTurnRecordsFullLifecycle(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	var log eventLog
	cb := log.cb()

	p.handleSTTEvent(context.Background(), STTEvent{Type: STTUtteranceStart}, cb)
	p.handleSTTEvent(context.Background(), STTEvent{Type: STTUtteranceEnd}, cb)
	p.handleSTTEvent(context.Background(), STTEvent{Type: STTTranscript, Text: "hello agent", Final: true, EndOfTurn: true}, cb)

	turns := sink.all()
	require.Len(t, turns, 1)
	turn := turns[0]

	assert.Equal(t, "hello agent", turn.UserText)
	assert.Equal(t, "Hi there.", turn.AgentText)
	require.NotNil(t, turn.EOUDelay)
	require.NotNil(t, turn.TTFT)
	require.NotNil(t, turn.TTFB)
	require.NotNil(t, turn.TotalLatency)
	require.NotNil(t, turn.TTSProcessing)
	assert.GreaterOrEqual(t, *turn.TotalLatency, *turn.TTFT)

	types := log.types()
	assert.Contains(t, types, "transcript")
	assert.Contains(t, types, "token")
	assert.Contains(t, types, "audio")
	assert.Contains(t, types, "agent_done")
}

func TestStreamingInterimTranscriptDoesNotRespond(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	var log eventLog
	cb := log.cb()

	p.handleSTTEvent(context.Background(), STTEvent{Type: STTUtteranceStart}, cb)
	p.handleSTTEvent(context.Background(), STTEvent{Type: STTTranscript, Text: "hel", Final: false}, cb)

	assert.Empty(t, sink.all())
	assert.Equal(t, []string{"transcript"}, log.types())
}

func TestStreamingJoinsFinalSegments(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	var log eventLog
	cb := log.cb()

	ctx := context.Background()
	p.handleSTTEvent(ctx, STTEvent{Type: STTUtteranceStart}, cb)
	p.handleSTTEvent(ctx, STTEvent{Type: STTTranscript, Text: "first part", Final: true}, cb)
	p.handleSTTEvent(ctx, STTEvent{Type: STTUtteranceEnd}, cb)
	p.handleSTTEvent(ctx, STTEvent{Type: STTTranscript, Text: "second part", Final: true, EndOfTurn: true}, cb)

	turns := sink.all()
	require.Len(t, turns, 1)
	assert.Equal(t, "first part second part", turns[0].UserText)
}

func TestBatchTranscribeAndRespond(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	var log eventLog

	c := p.cfg.Collector
	c.UtteranceStarted(c.Now())
	c.UtteranceEnded(c.Now())

	err := p.transcribeAndRespond(context.Background(), make([]float32, 1600), log.cb())
	require.NoError(t, err)

	turns := sink.all()
	require.Len(t, turns, 1)
	assert.Equal(t, "what can you do", turns[0].UserText)
	assert.Equal(t, "Hi there.", turns[0].AgentText)
}

func TestGreetOpensAndClosesTurn(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	p.cfg.Greeting = "Hello! How can I help you today?"
	var log eventLog

	err := p.Greet(context.Background(), log.cb())
	require.NoError(t, err)

	turns := sink.all()
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].UserSpeechDuration)
	assert.Equal(t, 0.0, *turns[0].UserSpeechDuration)
	assert.Equal(t, "Hi there.", turns[0].AgentText)
}

func TestGreetSkippedWhenEmpty(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(sink)
	var log eventLog

	require.NoError(t, p.Greet(context.Background(), log.cb()))
	assert.Empty(t, sink.all())
}

func TestTTSFailureDoesNotBlockTokenStream(t *testing.T) {
	// More sentences than the channel buffer holds, so a consumer that stops
	// receiving after the first failure would wedge the token callback.
	tokens := make([]string, 0, 12)
	for i := 0; i < 12; i++ {
		tokens = append(tokens, "A full sentence. ")
	}

	sink := &captureSink{}
	p := newTestPipeline(sink)
	p.cfg.LLMClient = NewLLMRouter("fake", 100)
	p.cfg.LLMClient.RegisterClient("fake", &fakeLLM{tokens: tokens}, "fake-model")
	p.cfg.TTSClient = NewTTSRouter("fake")
	p.cfg.TTSClient.Register("fake", failTTS{})

	c := p.cfg.Collector
	c.UtteranceStarted(c.Now())
	c.UtteranceEnded(c.Now())

	var log eventLog
	done := make(chan error, 1)
	go func() {
		done <- p.respond(context.Background(), "tell me everything", log.cb())
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("respond did not return after TTS failure")
	}

	types := log.types()
	assert.Contains(t, types, "error")
	assert.Contains(t, types, "agent_done")
	assert.NotContains(t, types, "audio")

	turns := sink.all()
	require.Len(t, turns, 1)
	assert.Nil(t, turns[0].TTFB)
	require.NotNil(t, turns[0].TTFT)
}

func TestConversationHistoryCarriesAcrossTurns(t *testing.T) {
	p := newTestPipeline(&captureSink{})
	p.history = append(p.history, turn{user: "hi", assistant: "hello"})

	got := p.formatInput("how are you")
	assert.Equal(t, "User: hi\nAssistant: hello\nUser: how are you", got)
}
