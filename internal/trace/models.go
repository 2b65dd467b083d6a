package trace

import "time"

// Session represents one room connection.
type Session struct {
	ID        string     `json:"id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	TurnCount int        `json:"turn_count,omitempty"`
}

// TurnRow is one persisted conversational turn with its latency profile.
// Interval columns are seconds; nil means the event was never observed.
type TurnRow struct {
	SessionID      string    `json:"session_id"`
	TurnIndex      int       `json:"turn_index"`
	StartedAt      time.Time `json:"started_at"`
	UserText       string    `json:"user_text,omitempty"`
	AgentText      string    `json:"agent_text,omitempty"`
	EOUDelayS      *float64  `json:"eou_delay_s,omitempty"`
	TTFTS          *float64  `json:"ttft_s,omitempty"`
	TTFBS          *float64  `json:"ttfb_s,omitempty"`
	TotalLatencyS  *float64  `json:"total_latency_s,omitempty"`
	TTSProcessingS *float64  `json:"tts_processing_s,omitempty"`
	SpeechDurS     *float64  `json:"speech_duration_s,omitempty"`
}
