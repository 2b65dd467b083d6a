package latency

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one user-utterance/agent-response exchange. Raw timestamps are
// monotonic offsets from the session epoch; derived intervals are seconds.
// A nil field means the event was never observed (or the interval could not
// be computed) — absent is never encoded as zero.
type Turn struct {
	Index     int
	SessionID string
	StartedAt time.Time

	UtteranceStart   *time.Duration
	UtteranceEnd     *time.Duration
	ProcessingStart  *time.Duration
	FirstToken       *time.Duration
	FirstAudioByte   *time.Duration
	ResponseComplete *time.Duration

	UserText  string
	AgentText string

	UserSpeechDuration *float64
	EOUDelay           *float64
	TTFT               *float64
	TTFB               *float64
	TTSProcessing      *float64
	TotalLatency       *float64
}

// Session identifies one room connection and anchors its monotonic clock.
type Session struct {
	ID        string
	StartedAt time.Time

	epoch time.Time
}

// NewSession creates a session with a fresh id and the current time as epoch.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		epoch:     now,
	}
}

// Elapsed returns the monotonic offset since the session epoch.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.epoch)
}

// interval returns the difference end−start in seconds, or nil when either
// endpoint is missing or the difference is negative (out-of-order events).
func interval(end, start *time.Duration) *float64 {
	if end == nil || start == nil {
		return nil
	}
	d := *end - *start
	if d < 0 {
		return nil
	}
	sec := d.Seconds()
	return &sec
}
