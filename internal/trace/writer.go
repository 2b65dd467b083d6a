package trace

import (
	"log/slog"

	"github.com/voicekit/agent/internal/latency"
)

const maxTextLen = 500

type traceMsg struct {
	kind string // "session_start", "turn", "session_end"
	turn latency.Turn
	meta string
}

// Writer persists session trace data asynchronously via a buffered channel.
// All methods are nil-safe (no-op on nil receiver). It implements
// latency.Sink so it can sit alongside the report sinks.
type Writer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewWriter creates a writer bound to a session. Must call Close when done.
func NewWriter(store *Store, sessionID string) *Writer {
	w := &Writer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan traceMsg, 64),
		done:      make(chan struct{}),
	}
	go w.drain()
	return w
}

func (w *Writer) drain() {
	defer close(w.done)
	for msg := range w.ch {
		w.handle(msg)
	}
}

func (w *Writer) handle(m traceMsg) {
	handlers := map[string]func() error{
		"session_start": func() error {
			return w.store.CreateSession(w.sessionID, m.meta, m.turn.StartedAt)
		},
		"turn": func() error {
			return w.store.InsertTurn(TurnRow{
				SessionID:      m.turn.SessionID,
				TurnIndex:      m.turn.Index,
				StartedAt:      m.turn.StartedAt,
				UserText:       truncate(m.turn.UserText, maxTextLen),
				AgentText:      truncate(m.turn.AgentText, maxTextLen),
				EOUDelayS:      m.turn.EOUDelay,
				TTFTS:          m.turn.TTFT,
				TTFBS:          m.turn.TTFB,
				TotalLatencyS:  m.turn.TotalLatency,
				TTSProcessingS: m.turn.TTSProcessing,
				SpeechDurS:     m.turn.UserSpeechDuration,
			})
		},
		"session_end": func() error { return w.store.EndSession(w.sessionID) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "session_id", w.sessionID, "error", err)
	}
}

// StartSession records the session row.
func (w *Writer) StartSession(sess *latency.Session, metadata string) {
	if w == nil {
		return
	}
	w.ch <- traceMsg{kind: "session_start", meta: metadata, turn: latency.Turn{StartedAt: sess.StartedAt}}
}

// Append persists one closed turn. Implements latency.Sink.
func (w *Writer) Append(t latency.Turn) {
	if w == nil {
		return
	}
	w.ch <- traceMsg{kind: "turn", turn: t}
}

// EndSession marks the session finished.
func (w *Writer) EndSession() {
	if w == nil {
		return
	}
	w.ch <- traceMsg{kind: "session_end"}
}

// Close drains pending writes and shuts down the background goroutine.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	close(w.ch)
	<-w.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
