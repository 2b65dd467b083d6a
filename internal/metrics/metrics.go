package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_sessions_active",
		Help: "Currently active conversation sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_sessions_total",
		Help: "Total sessions handled",
	})

	TurnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_turns_total",
		Help: "Conversation turns completed",
	})

	TurnsForceClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_turns_force_closed_total",
		Help: "Turns closed with partial data (new utterance or session end arrived first)",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_stage_duration_seconds",
		Help:    "Per-stage latency (stt, llm, tts)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	TurnLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_turn_latency_seconds",
		Help:    "Derived per-turn intervals (eou_delay, ttft, ttfb, total)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	}, []string{"interval"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	OutOfOrderEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_out_of_order_events_total",
		Help: "Lifecycle events that arrived before their prerequisite",
	}, []string{"event"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_audio_chunks_total",
		Help: "Audio chunks received from the room",
	})

	ReportRowsFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_report_rows_flushed_total",
		Help: "Turn rows durably written to the metrics spreadsheet",
	})

	ReportFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_report_flush_errors_total",
		Help: "Failed spreadsheet flush attempts (rows retained for retry)",
	})

	STTReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_stt_reconnects_total",
		Help: "Speech-to-text stream reconnect attempts",
	})
)
