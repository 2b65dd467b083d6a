package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicekit/agent/internal/audio"
	"github.com/voicekit/agent/internal/latency"
	"github.com/voicekit/agent/internal/metrics"
	"github.com/voicekit/agent/internal/pipeline"
	"github.com/voicekit/agent/internal/prompts"
	"github.com/voicekit/agent/internal/report"
	"github.com/voicekit/agent/internal/trace"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the shared backend clients for all sessions.
type HandlerConfig struct {
	STTClient *pipeline.STTRouter
	LLMClient *pipeline.LLMRouter
	TTSClient *pipeline.TTSRouter
	VADConfig audio.VADConfig

	Reporter  *report.Reporter
	ExportDir string
	Trace     *trace.Store

	MaxConcurrent int
	FlushInterval time.Duration

	SystemPrompt         string
	Greeting             string
	LLMModel             string
	TTSSpeed             float64
	InterSentencePauseMs int
}

// Handler manages WebSocket sessions with admission control.
type Handler struct {
	cfg HandlerConfig
	sem chan struct{}
}

// NewHandler creates a WebSocket handler with shared backend clients and concurrency limit.
func NewHandler(cfg HandlerConfig) *Handler {
	maxConc := cfg.MaxConcurrent
	if maxConc <= 0 {
		maxConc = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	return &Handler{
		cfg: cfg,
		sem: make(chan struct{}, maxConc),
	}
}

// sessionMetadata is the first text frame sent by the client.
type sessionMetadata struct {
	SampleRate   int    `json:"sample_rate"`
	STTEngine    string `json:"stt_engine"`
	TTSEngine    string `json:"tts_engine"`
	LLMEngine    string `json:"llm_engine"`
	LLMModel     string `json:"llm_model"`
	TTSVoice     string `json:"tts_voice"`
	SystemPrompt string `json:"system_prompt"`
	Greeting     string `json:"greeting"`
}

// ServeHTTP upgrades the connection and runs the session.
// Returns 503 if at max concurrent capacity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	default:
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	metrics.SessionsActive.Inc()
	metrics.SessionsTotal.Inc()
	defer metrics.SessionsActive.Dec()

	h.runSession(conn)
}

func (h *Handler) runSession(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	meta, err := readMetadata(conn)
	if err != nil {
		slog.Error("read metadata", "error", err)
		return
	}

	sampleRate := meta.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	sttEngine := meta.STTEngine
	if sttEngine == "" {
		sttEngine = h.cfg.STTClient.Fallback()
	}
	ttsEngine := meta.TTSEngine
	if ttsEngine == "" {
		ttsEngine = h.cfg.TTSClient.Fallback()
	}
	llmEngine := meta.LLMEngine
	if llmEngine == "" {
		llmEngine = h.cfg.LLMClient.Fallback()
	}
	systemPrompt := meta.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = h.cfg.SystemPrompt
	}
	systemPrompt = prompts.ForSession(systemPrompt)
	greeting := meta.Greeting
	if greeting == "" {
		greeting = h.cfg.Greeting
	}
	llmModel := meta.LLMModel
	if llmModel == "" {
		llmModel = h.cfg.LLMModel
	}

	sess := latency.NewSession()
	slog.Info("session started",
		"session_id", sess.ID,
		"sample_rate", sampleRate,
		"stt_engine", sttEngine,
		"llm_engine", llmEngine,
		"tts_engine", ttsEngine,
	)

	// Turn sinks: shared CSV via the pump, in-memory log for the per-session
	// workbook, optional trace store.
	pump := report.NewPump(h.cfg.Reporter, h.cfg.FlushInterval)
	sessionLog := &report.SessionLog{}

	var writer *trace.Writer
	if h.cfg.Trace != nil {
		writer = trace.NewWriter(h.cfg.Trace, sess.ID)
		metaJSON, _ := json.Marshal(meta)
		writer.StartSession(sess, string(metaJSON))
	}

	collector := latency.NewCollector(sess, report.Fanout{pump, sessionLog, writer})

	pipe := pipeline.New(pipeline.Config{
		STTClient:            h.cfg.STTClient,
		LLMClient:            h.cfg.LLMClient,
		TTSClient:            h.cfg.TTSClient,
		VADConfig:            h.cfg.VADConfig,
		Collector:            collector,
		SessionID:            sess.ID,
		SystemPrompt:         systemPrompt,
		Greeting:             greeting,
		STTEngine:            sttEngine,
		LLMEngine:            llmEngine,
		LLMModel:             llmModel,
		TTSEngine:            ttsEngine,
		TTSVoice:             meta.TTSVoice,
		TTSSpeed:             h.cfg.TTSSpeed,
		SampleRate:           sampleRate,
		InterSentencePauseMs: h.cfg.InterSentencePauseMs,
	})

	sendEvent := newEventSender(conn)

	streaming, err := pipe.Start(ctx, sendEvent)
	if err != nil {
		slog.Error("start stt stream, falling back to local segmentation", "session_id", sess.ID, "error", err)
	}
	slog.Info("turn detection", "session_id", sess.ID, "streaming", streaming)

	if err = pipe.Greet(ctx, sendEvent); err != nil {
		slog.Error("greeting", "session_id", sess.ID, "error", err)
	}

	processMessages(ctx, conn, pipe, sendEvent)

	if err = pipe.Flush(ctx, sendEvent); err != nil {
		slog.Error("flush", "session_id", sess.ID, "error", err)
	}
	if err = pipe.Close(); err != nil {
		slog.Error("close stt stream", "session_id", sess.ID, "error", err)
	}

	// Closing the collector force-closes a mid-flight turn; closing the pump
	// drains it into the CSV.
	collector.Close()
	pump.Close()

	turns := sessionLog.Turns()
	if h.cfg.ExportDir != "" && len(turns) > 0 {
		path := filepath.Join(h.cfg.ExportDir, fmt.Sprintf("session_%s.xlsx", sess.ID))
		if err = report.ExportWorkbook(path, sess, turns); err != nil {
			slog.Error("export workbook", "session_id", sess.ID, "error", err)
		} else {
			slog.Info("workbook exported", "session_id", sess.ID, "path", path)
		}
	}

	writer.EndSession()
	writer.Close()

	slog.Info("session ended", "session_id", sess.ID, "turns", len(turns))
}

// processMessages reads frames from the WebSocket in a loop. Binary frames
// are PCM16 audio chunks fed into the pipeline; the metadata text frame was
// already consumed by runSession.
func processMessages(ctx context.Context, conn *websocket.Conn, pipe *pipeline.Pipeline, sendEvent pipeline.EventCallback) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("connection closed", "error", err)
			return
		}

		if msgType != websocket.BinaryMessage {
			return
		}

		if err = pipe.ProcessChunk(ctx, data, sendEvent); err != nil {
			slog.Error("process chunk", "error", err)
			sendEvent(pipeline.Event{Type: "error", Text: err.Error()})
		}
	}
}

func newEventSender(conn *websocket.Conn) pipeline.EventCallback {
	var mu sync.Mutex
	return func(ev pipeline.Event) {
		mu.Lock()
		defer mu.Unlock()

		if ev.Audio != nil {
			if err := conn.WriteMessage(websocket.BinaryMessage, ev.Audio); err != nil {
				slog.Error("write audio", "error", err)
			}
		}

		jsonBytes, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if err = conn.WriteMessage(websocket.TextMessage, jsonBytes); err != nil {
			slog.Error("write event", "error", err)
		}
	}
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var meta sessionMetadata
	if err = json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
