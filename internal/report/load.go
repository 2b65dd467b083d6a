package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/voicekit/agent/internal/latency"
)

// ReadCSV loads turns back from a metrics CSV written by the Reporter.
// Empty interval cells become nil, mirroring how they were written.
func ReadCSV(path string) ([]latency.Turn, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	turns := make([]latency.Turn, 0, len(records)-1)
	for i, rec := range records[1:] { // skip header
		if len(rec) != len(Header) {
			return nil, fmt.Errorf("row %d: got %d columns, want %d", i+2, len(rec), len(Header))
		}
		idx, err := strconv.Atoi(rec[0])
		if err != nil {
			return nil, fmt.Errorf("row %d turn_index: %w", i+2, err)
		}
		ts, err := time.Parse("2006-01-02T15:04:05.000Z07:00", rec[2])
		if err != nil {
			return nil, fmt.Errorf("row %d timestamp: %w", i+2, err)
		}
		turns = append(turns, latency.Turn{
			Index:              idx,
			SessionID:          rec[1],
			StartedAt:          ts,
			EOUDelay:           parseCell(rec[3]),
			TTFT:               parseCell(rec[4]),
			TTFB:               parseCell(rec[5]),
			TotalLatency:       parseCell(rec[6]),
			TTSProcessing:      parseCell(rec[7]),
			UserSpeechDuration: parseCell(rec[8]),
			UserText:           rec[9],
			AgentText:          rec[10],
		})
	}
	return turns, nil
}

func parseCell(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
