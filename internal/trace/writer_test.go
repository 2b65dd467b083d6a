package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/voicekit/agent/internal/latency"
)

func TestNilWriterIsNoOp(t *testing.T) {
	var w *Writer

	w.StartSession(latency.NewSession(), "{}")
	w.Append(latency.Turn{Index: 1})
	w.EndSession()
	w.Close()
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
}
