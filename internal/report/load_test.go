package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicekit/agent/internal/latency"
)

func TestReadCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	r := NewReporter(path)

	in := latency.Turn{
		Index:              1,
		SessionID:          "sess-1",
		StartedAt:          time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
		EOUDelay:           f64(0.3),
		TTFT:               f64(0.3),
		TTFB:               f64(0.6),
		TotalLatency:       f64(1.8),
		TTSProcessing:      f64(1.2),
		UserSpeechDuration: f64(1.2),
		UserText:           "hello, agent",
		AgentText:          "hello back",
	}
	r.Append(in)
	r.Append(latency.Turn{Index: 2, SessionID: "sess-1", StartedAt: in.StartedAt})
	require.NoError(t, r.Flush())

	turns, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	assert.Equal(t, in.Index, turns[0].Index)
	assert.Equal(t, in.SessionID, turns[0].SessionID)
	assert.Equal(t, in.UserText, turns[0].UserText)
	assert.Equal(t, in.AgentText, turns[0].AgentText)
	require.NotNil(t, turns[0].TTFT)
	assert.Equal(t, 0.3, *turns[0].TTFT)

	// Absent intervals come back nil, not zero.
	assert.Nil(t, turns[1].TTFT)
	assert.Nil(t, turns[1].TotalLatency)
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}
