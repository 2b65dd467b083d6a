package latency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	turns []Turn
}

func (s *captureSink) Append(t Turn) { s.turns = append(s.turns, t) }

func sec(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func TestDerivedIntervals(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.0))
	c.UtteranceEnded(sec(1.2))
	c.ProcessingStarted(sec(1.25))
	c.FirstToken(sec(1.5))
	c.FirstAudioByte(sec(1.8))
	c.ResponseCompleted(sec(3.0))

	require.Len(t, sink.turns, 1)
	turn := sink.turns[0]

	require.NotNil(t, turn.UserSpeechDuration)
	assert.InDelta(t, 1.2, *turn.UserSpeechDuration, 1e-9)
	require.NotNil(t, turn.EOUDelay)
	assert.InDelta(t, 0.05, *turn.EOUDelay, 1e-9)
	require.NotNil(t, turn.TTFT)
	assert.InDelta(t, 0.3, *turn.TTFT, 1e-9)
	require.NotNil(t, turn.TTFB)
	assert.InDelta(t, 0.6, *turn.TTFB, 1e-9)
	require.NotNil(t, turn.TTSProcessing)
	assert.InDelta(t, 1.2, *turn.TTSProcessing, 1e-9)
	require.NotNil(t, turn.TotalLatency)
	assert.InDelta(t, 1.8, *turn.TotalLatency, 1e-9)
}

func TestSessionEndMidTurn(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.5))
	c.Close()

	require.Len(t, sink.turns, 1)
	turn := sink.turns[0]
	assert.Equal(t, 1, turn.Index)
	assert.NotEmpty(t, turn.SessionID)

	// All derived fields absent — never defaulted to zero.
	assert.Nil(t, turn.UserSpeechDuration)
	assert.Nil(t, turn.EOUDelay)
	assert.Nil(t, turn.TTFT)
	assert.Nil(t, turn.TTFB)
	assert.Nil(t, turn.TTSProcessing)
	assert.Nil(t, turn.TotalLatency)
}

func TestConsecutiveUtteranceStartsForceClose(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.0))
	c.UtteranceEnded(sec(0.8))
	c.UtteranceStarted(sec(2.0)) // new utterance before the response completed
	c.UtteranceEnded(sec(2.5))
	c.ResponseCompleted(sec(3.5))

	require.Len(t, sink.turns, 2)

	first := sink.turns[0]
	assert.Equal(t, 1, first.Index)
	require.NotNil(t, first.UserSpeechDuration)
	assert.InDelta(t, 0.8, *first.UserSpeechDuration, 1e-9)
	assert.Nil(t, first.TotalLatency)

	second := sink.turns[1]
	assert.Equal(t, 2, second.Index)
	require.NotNil(t, second.TotalLatency)
	assert.InDelta(t, 1.0, *second.TotalLatency, 1e-9)
}

func TestFirstTokenWithoutUtteranceEnd(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.0))
	c.FirstToken(sec(0.4))
	c.ResponseCompleted(sec(1.0))

	require.Len(t, sink.turns, 1)
	turn := sink.turns[0]
	assert.Nil(t, turn.TTFT, "ttft must be absent when utterance end was never observed")
	assert.Nil(t, turn.TotalLatency)
	require.NotNil(t, turn.FirstToken)
}

func TestOutOfOrderIntervalNeverNegative(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.0))
	c.UtteranceEnded(sec(2.0))
	c.FirstToken(sec(1.0)) // earlier than EOU: interval would be negative
	c.ResponseCompleted(sec(3.0))

	require.Len(t, sink.turns, 1)
	assert.Nil(t, sink.turns[0].TTFT)
}

func TestEventsWithoutOpenTurnAreDropped(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceEnded(sec(1.0))
	c.FirstToken(sec(1.5))
	c.ResponseCompleted(sec(2.0))
	c.Close()

	assert.Empty(t, sink.turns)
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.UtteranceStarted(sec(0.0))
	c.UtteranceEnded(sec(1.0))
	c.SetUserText("hello")
	c.ResponseCompleted(sec(2.0))
	c.Close()
	assert.Equal(t, time.Duration(0), c.Now())
}

func TestTurnTextAttachment(t *testing.T) {
	sink := &captureSink{}
	c := NewCollector(NewSession(), sink)

	c.UtteranceStarted(sec(0.0))
	c.UtteranceEnded(sec(1.0))
	c.SetUserText("what's the weather")
	c.SetAgentText("sunny and mild")
	c.ResponseCompleted(sec(2.0))

	require.Len(t, sink.turns, 1)
	assert.Equal(t, "what's the weather", sink.turns[0].UserText)
	assert.Equal(t, "sunny and mild", sink.turns[0].AgentText)
}
