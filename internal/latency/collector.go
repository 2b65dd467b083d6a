// Package latency captures per-turn timing from pipeline lifecycle events.
// The surrounding session supplies monotonic timestamps; the collector only
// records them and derives intervals, so nothing here can block or fail the
// conversation.
package latency

import (
	"log/slog"
	"sync"
	"time"

	"github.com/voicekit/agent/internal/metrics"
)

// Sink receives closed turns. Implementations must not block; the reporter
// buffers internally.
type Sink interface {
	Append(Turn)
}

// Collector tracks the currently open turn for one session. The LLM token
// stream and the TTS consumer report from separate goroutines, so a mutex
// guards the open turn. All methods are nil-safe: a nil collector turns the
// metrics variant of the pipeline into the plain one.
type Collector struct {
	mu      sync.Mutex
	session *Session
	sink    Sink
	current *Turn
	seq     int
}

// NewCollector creates a collector for one session writing closed turns to sink.
func NewCollector(session *Session, sink Sink) *Collector {
	return &Collector{session: session, sink: sink}
}

// Now returns the session's monotonic offset, for callers that drive the
// collector from real pipeline events rather than a recorded timeline.
func (c *Collector) Now() time.Duration {
	if c == nil {
		return 0
	}
	return c.session.Elapsed()
}

// UtteranceStarted opens a new turn at ts. A still-open prior turn is
// force-closed first with whatever fields it has: data is never dropped.
func (c *Collector) UtteranceStarted(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		metrics.TurnsForceClosed.Inc()
		slog.Warn("turn force-closed by new utterance", "session_id", c.session.ID, "turn", c.current.Index)
		c.close()
	}
	c.seq++
	c.current = &Turn{
		Index:          c.seq,
		SessionID:      c.session.ID,
		StartedAt:      time.Now(),
		UtteranceStart: &ts,
	}
}

// UtteranceEnded records the end of the user's speech (EOU) and derives the
// user speech duration.
func (c *Collector) UtteranceEnded(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.open("utterance_end")
	if t == nil {
		return
	}
	t.UtteranceEnd = &ts
	t.UserSpeechDuration = interval(t.UtteranceEnd, t.UtteranceStart)
}

// ProcessingStarted records the transcript being handed to the LLM and
// derives the EOU delay.
func (c *Collector) ProcessingStarted(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.open("processing_start")
	if t == nil {
		return
	}
	t.ProcessingStart = &ts
	t.EOUDelay = interval(t.ProcessingStart, t.UtteranceEnd)
}

// FirstToken records the first model token. TTFT is measured from utterance
// end; if that event was never seen the field stays absent.
func (c *Collector) FirstToken(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.open("first_token")
	if t == nil {
		return
	}
	t.FirstToken = &ts
	t.TTFT = interval(t.FirstToken, t.UtteranceEnd)
	if t.TTFT == nil {
		metrics.OutOfOrderEvents.WithLabelValues("first_token").Inc()
		slog.Warn("first token before utterance end, ttft unavailable", "session_id", c.session.ID, "turn", t.Index)
	}
}

// FirstAudioByte records the first synthesized audio byte. TTFB is measured
// from utterance end (the request start for the response path).
func (c *Collector) FirstAudioByte(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.open("first_byte")
	if t == nil {
		return
	}
	t.FirstAudioByte = &ts
	t.TTFB = interval(t.FirstAudioByte, t.UtteranceEnd)
}

// ResponseCompleted records the end of synthesis, derives the remaining
// intervals, and closes the turn.
func (c *Collector) ResponseCompleted(ts time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.open("response_complete")
	if t == nil {
		return
	}
	t.ResponseComplete = &ts
	t.TTSProcessing = interval(t.ResponseComplete, t.FirstAudioByte)
	t.TotalLatency = interval(t.ResponseComplete, t.UtteranceEnd)
	c.close()
}

// SetUserText attaches the final transcript to the open turn.
func (c *Collector) SetUserText(text string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.current.UserText = text
}

// SetAgentText attaches the agent's response to the open turn.
func (c *Collector) SetAgentText(text string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	c.current.AgentText = text
}

// Close force-closes any open turn. Called when the session ends so partial
// turns are flushed rather than lost.
func (c *Collector) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	metrics.TurnsForceClosed.Inc()
	slog.Info("turn force-closed at session end", "session_id", c.session.ID, "turn", c.current.Index)
	c.close()
}

// open returns the current turn, or nil (with a log) when the event arrived
// with no turn in progress. Such events are dropped, never fatal. Callers
// hold the mutex.
func (c *Collector) open(event string) *Turn {
	if c.current == nil {
		metrics.OutOfOrderEvents.WithLabelValues(event).Inc()
		slog.Warn("lifecycle event with no open turn", "session_id", c.session.ID, "event", event)
		return nil
	}
	return c.current
}

func (c *Collector) close() {
	t := c.current
	c.current = nil

	observe("eou_delay", t.EOUDelay)
	observe("ttft", t.TTFT)
	observe("ttfb", t.TTFB)
	observe("total", t.TotalLatency)
	metrics.TurnsTotal.Inc()

	if c.sink != nil {
		c.sink.Append(*t)
	}
}

func observe(name string, sec *float64) {
	if sec == nil {
		return
	}
	metrics.TurnLatency.WithLabelValues(name).Observe(*sec)
}
