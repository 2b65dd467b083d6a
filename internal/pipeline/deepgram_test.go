package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatchAll(s *deepgramStream, raw ...string) {
	for _, r := range raw {
		var msg deepgramMessage
		if err := json.Unmarshal([]byte(r), &msg); err != nil {
			panic(err)
		}
		s.dispatch(msg)
	}
}

func collectEvents() (*deepgramStream, *[]STTEvent) {
	events := &[]STTEvent{}
	s := &deepgramStream{onEvent: func(ev STTEvent) { *events = append(*events, ev) }}
	return s, events
}

func TestDispatchSpeechStartedDeduped(t *testing.T) {
	s, events := collectEvents()

	dispatchAll(s,
		`{"type":"SpeechStarted"}`,
		`{"type":"SpeechStarted"}`,
		`{"type":"SpeechStarted"}`,
	)

	require.Len(t, *events, 1)
	assert.Equal(t, STTUtteranceStart, (*events)[0].Type)
}

func TestDispatchUtteranceEndRequiresOpenSpeech(t *testing.T) {
	s, events := collectEvents()

	dispatchAll(s, `{"type":"UtteranceEnd"}`)
	assert.Empty(t, *events)

	dispatchAll(s,
		`{"type":"SpeechStarted"}`,
		`{"type":"UtteranceEnd"}`,
		`{"type":"UtteranceEnd"}`,
	)
	require.Len(t, *events, 2)
	assert.Equal(t, STTUtteranceEnd, (*events)[1].Type)
}

func TestDispatchSpeechFinalEmitsUtteranceEndThenTranscript(t *testing.T) {
	s, events := collectEvents()

	dispatchAll(s,
		`{"type":"SpeechStarted"}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hello world"}]}}`,
	)

	require.Len(t, *events, 3)
	assert.Equal(t, STTUtteranceStart, (*events)[0].Type)
	assert.Equal(t, STTUtteranceEnd, (*events)[1].Type)

	tr := (*events)[2]
	assert.Equal(t, STTTranscript, tr.Type)
	assert.Equal(t, "hello world", tr.Text)
	assert.True(t, tr.Final)
	assert.True(t, tr.EndOfTurn)
}

func TestDispatchInterimResultsPassThrough(t *testing.T) {
	s, events := collectEvents()

	dispatchAll(s,
		`{"type":"SpeechStarted"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
	)

	require.Len(t, *events, 2)
	tr := (*events)[1]
	assert.Equal(t, STTTranscript, tr.Type)
	assert.False(t, tr.Final)
	assert.False(t, tr.EndOfTurn)
}

func TestDispatchEmptyTranscriptDropped(t *testing.T) {
	s, events := collectEvents()

	dispatchAll(s,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`,
	)
	assert.Empty(t, *events)
}
