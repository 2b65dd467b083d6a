package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/voicekit/agent/internal/latency"
)

// Stat is an aggregate over one interval column.
type Stat struct {
	Metric  string
	Average float64
	Min     float64
	Max     float64
	Count   int
}

// metricColumns maps display names to turn field accessors, in report order.
var metricColumns = []struct {
	name string
	get  func(latency.Turn) *float64
}{
	{"EOU Delay (s)", func(t latency.Turn) *float64 { return t.EOUDelay }},
	{"TTFT (s)", func(t latency.Turn) *float64 { return t.TTFT }},
	{"TTFB (s)", func(t latency.Turn) *float64 { return t.TTFB }},
	{"Total Latency (s)", func(t latency.Turn) *float64 { return t.TotalLatency }},
	{"TTS Processing (s)", func(t latency.Turn) *float64 { return t.TTSProcessing }},
	{"User Speech Duration (s)", func(t latency.Turn) *float64 { return t.UserSpeechDuration }},
}

// eventColumns lists the raw lifecycle timestamps in the order they occur
// within a turn. Unobserved events are skipped in the log.
var eventColumns = []struct {
	name string
	get  func(latency.Turn) *time.Duration
}{
	{"utterance_start", func(t latency.Turn) *time.Duration { return t.UtteranceStart }},
	{"utterance_end", func(t latency.Turn) *time.Duration { return t.UtteranceEnd }},
	{"processing_start", func(t latency.Turn) *time.Duration { return t.ProcessingStart }},
	{"first_token", func(t latency.Turn) *time.Duration { return t.FirstToken }},
	{"first_audio_byte", func(t latency.Turn) *time.Duration { return t.FirstAudioByte }},
	{"response_complete", func(t latency.Turn) *time.Duration { return t.ResponseComplete }},
}

// Summarize computes average/min/max per interval across the given turns.
// Metrics with no observed values are omitted.
func Summarize(turns []latency.Turn) []Stat {
	stats := make([]Stat, 0, len(metricColumns))
	for _, col := range metricColumns {
		var sum, minV, maxV float64
		count := 0
		for _, t := range turns {
			v := col.get(t)
			if v == nil {
				continue
			}
			if count == 0 || *v < minV {
				minV = *v
			}
			if count == 0 || *v > maxV {
				maxV = *v
			}
			sum += *v
			count++
		}
		if count == 0 {
			continue
		}
		stats = append(stats, Stat{
			Metric:  col.name,
			Average: sum / float64(count),
			Min:     minV,
			Max:     maxV,
			Count:   count,
		})
	}
	return stats
}

// ExportWorkbook writes a per-session .xlsx with a turn sheet, summary
// statistics, a raw event log, and session info.
func ExportWorkbook(path string, sess *latency.Session, turns []latency.Turn) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create workbook dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", "Turns"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []interface{}{
		"Turn", "Timestamp", "EOU Delay (s)", "TTFT (s)", "TTFB (s)",
		"Total Latency (s)", "TTS Processing (s)", "User Speech Duration (s)",
		"User Text", "Agent Text",
	}
	if err := f.SetSheetRow("Turns", "A1", &header); err != nil {
		return fmt.Errorf("write turn header: %w", err)
	}
	for i, t := range turns {
		row := []interface{}{
			t.Index,
			t.StartedAt.UTC().Format(time.RFC3339),
			xcell(t.EOUDelay),
			xcell(t.TTFT),
			xcell(t.TTFB),
			xcell(t.TotalLatency),
			xcell(t.TTSProcessing),
			xcell(t.UserSpeechDuration),
			t.UserText,
			t.AgentText,
		}
		axis := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow("Turns", axis, &row); err != nil {
			return fmt.Errorf("write turn row: %w", err)
		}
	}

	if _, err := f.NewSheet("Summary"); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	summaryHeader := []interface{}{"Metric", "Average", "Min", "Max", "Count"}
	if err := f.SetSheetRow("Summary", "A1", &summaryHeader); err != nil {
		return fmt.Errorf("write summary header: %w", err)
	}
	for i, s := range Summarize(turns) {
		row := []interface{}{s.Metric, s.Average, s.Min, s.Max, s.Count}
		axis := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow("Summary", axis, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}

	if _, err := f.NewSheet("Events"); err != nil {
		return fmt.Errorf("events sheet: %w", err)
	}
	eventsHeader := []interface{}{"Turn", "Event", "Offset (s)"}
	if err := f.SetSheetRow("Events", "A1", &eventsHeader); err != nil {
		return fmt.Errorf("write events header: %w", err)
	}
	rowIdx := 2
	for _, t := range turns {
		for _, ev := range eventColumns {
			ts := ev.get(t)
			if ts == nil {
				continue
			}
			row := []interface{}{t.Index, ev.name, ts.Seconds()}
			axis := fmt.Sprintf("A%d", rowIdx)
			if err := f.SetSheetRow("Events", axis, &row); err != nil {
				return fmt.Errorf("write event row: %w", err)
			}
			rowIdx++
		}
	}

	if _, err := f.NewSheet("Session"); err != nil {
		return fmt.Errorf("session sheet: %w", err)
	}
	info := [][]interface{}{
		{"Session ID", sess.ID},
		{"Started", sess.StartedAt.UTC().Format(time.RFC3339)},
		{"Total Turns", len(turns)},
		{"Duration (minutes)", time.Since(sess.StartedAt).Minutes()},
	}
	for i, row := range info {
		r := row
		axis := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow("Session", axis, &r); err != nil {
			return fmt.Errorf("write session info: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// xcell converts an optional interval to an excel cell value; absent stays
// an empty cell.
func xcell(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

// SessionLog keeps a session's closed turns in memory for workbook export
// at session end.
type SessionLog struct {
	mu    sync.Mutex
	turns []latency.Turn
}

// Append implements latency.Sink.
func (l *SessionLog) Append(t latency.Turn) {
	l.mu.Lock()
	l.turns = append(l.turns, t)
	l.mu.Unlock()
}

// Turns returns a copy of the accumulated turns.
func (l *SessionLog) Turns() []latency.Turn {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]latency.Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Fanout delivers each closed turn to every sink.
type Fanout []latency.Sink

// Append implements latency.Sink.
func (f Fanout) Append(t latency.Turn) {
	for _, s := range f {
		s.Append(t)
	}
}
