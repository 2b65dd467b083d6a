// Package report persists closed turns to a spreadsheet. Rows are buffered
// in memory and flushed in batches so disk I/O never sits on the event path.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/voicekit/agent/internal/latency"
	"github.com/voicekit/agent/internal/metrics"
)

// Header is the column layout of the turn metrics CSV. All interval columns
// are seconds; absent values are empty cells.
var Header = []string{
	"turn_index",
	"session_id",
	"timestamp",
	"eou_delay_s",
	"ttft_s",
	"ttfb_s",
	"total_latency_s",
	"tts_processing_s",
	"user_speech_duration_s",
	"user_text",
	"agent_text",
}

// Reporter appends turn rows to a CSV file. Append buffers; Flush writes.
// Safe for concurrent use.
type Reporter struct {
	mu   sync.Mutex
	path string
	buf  []latency.Turn
}

// NewReporter creates a reporter writing to the CSV file at path. The file
// and its directory are created on first flush.
func NewReporter(path string) *Reporter {
	return &Reporter{path: path}
}

// Append buffers one closed turn. It never blocks and never fails; rows
// reach disk on the next Flush.
func (r *Reporter) Append(t latency.Turn) {
	r.mu.Lock()
	r.buf = append(r.buf, t)
	r.mu.Unlock()
}

// Pending returns the number of buffered, not-yet-flushed rows.
func (r *Reporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Path returns the destination CSV path.
func (r *Reporter) Path() string {
	return r.path
}

// Flush appends all buffered rows to the CSV file, writing the header first
// when the file is new or empty. Already-flushed rows are never rewritten,
// so calling Flush repeatedly without new appends is a no-op. On failure the
// buffer is retained for the next attempt.
func (r *Reporter) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		metrics.ReportFlushErrors.Inc()
		return fmt.Errorf("create report dir: %w", err)
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		metrics.ReportFlushErrors.Inc()
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		metrics.ReportFlushErrors.Inc()
		return fmt.Errorf("stat report: %w", err)
	}

	// Encode the whole batch in memory and append it with a single write, so
	// a failed flush leaves no partial rows behind to duplicate on retry.
	var batch bytes.Buffer
	w := csv.NewWriter(&batch)
	if info.Size() == 0 {
		if err = w.Write(Header); err != nil {
			metrics.ReportFlushErrors.Inc()
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, t := range r.buf {
		if err = w.Write(Row(t)); err != nil {
			metrics.ReportFlushErrors.Inc()
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		metrics.ReportFlushErrors.Inc()
		return fmt.Errorf("encode report: %w", err)
	}

	if _, err = f.Write(batch.Bytes()); err != nil {
		metrics.ReportFlushErrors.Inc()
		return fmt.Errorf("write report: %w", err)
	}

	metrics.ReportRowsFlushed.Add(float64(len(r.buf)))
	r.buf = r.buf[:0]
	return nil
}

// Row serializes one turn in Header order.
func Row(t latency.Turn) []string {
	return []string{
		strconv.Itoa(t.Index),
		t.SessionID,
		t.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		cell(t.EOUDelay),
		cell(t.TTFT),
		cell(t.TTFB),
		cell(t.TotalLatency),
		cell(t.TTSProcessing),
		cell(t.UserSpeechDuration),
		t.UserText,
		t.AgentText,
	}
}

// cell formats an optional interval; absent values stay empty, never zero.
func cell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
