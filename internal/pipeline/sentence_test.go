package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentenceBufferReleasesAtBoundary(t *testing.T) {
	var sb sentenceBuffer

	assert.Equal(t, "", sb.Add("Hello"))
	assert.Equal(t, "", sb.Add(" there"))
	assert.Equal(t, "Hello there.", sb.Add(". How"))
	assert.Equal(t, "", sb.Add(" are you"))
	assert.Equal(t, "How are you", sb.Flush())
}

func TestSentenceBufferMultipleSentencesInOneToken(t *testing.T) {
	var sb sentenceBuffer

	got := sb.Add("One. Two! Three? Four")
	assert.Equal(t, "One. Two! Three?", got)
	assert.Equal(t, "Four", sb.Flush())
}

func TestSentenceBufferNoSplitWithoutTrailingSpace(t *testing.T) {
	var sb sentenceBuffer

	// "3.14" must not split at the decimal point.
	assert.Equal(t, "", sb.Add("pi is 3.14"))
	assert.Equal(t, "pi is 3.14", sb.Flush())
}

func TestSentenceBufferFlushEmpty(t *testing.T) {
	var sb sentenceBuffer
	assert.Equal(t, "", sb.Flush())
}

func TestSplitAtSentence(t *testing.T) {
	complete, remainder := splitAtSentence("Done. Next word")
	assert.Equal(t, "Done.", complete)
	assert.Equal(t, " Next word", remainder)

	complete, remainder = splitAtSentence("no boundary here")
	assert.Equal(t, "", complete)
	assert.Equal(t, "no boundary here", remainder)
}
