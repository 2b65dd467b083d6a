package main

import (
	"time"

	"github.com/voicekit/agent/internal/audio"
	"github.com/voicekit/agent/internal/env"
	"github.com/voicekit/agent/internal/prompts"
)

type config struct {
	port string

	deepgramAPIKey   string
	deepgramModel    string
	deepgramLanguage string
	utteranceEndMs   int
	whisperURL       string
	sttPoolSize      int

	groqAPIKey   string
	groqBaseURL  string
	groqModel    string
	openaiAPIKey string
	openaiModel  string
	llmMaxTokens int

	cartesiaAPIKey    string
	cartesiaModel     string
	cartesiaVoiceID   string
	ttsSampleRate     int
	elevenlabsAPIKey  string
	elevenlabsVoiceID string
	elevenlabsModelID string
	ttsPoolSize       int

	systemPrompt         string
	greeting             string
	greetingEnabled      bool
	ttsSpeed             float64
	interSentencePauseMs int

	maxConcurrentSessions int
	vadConfig             audio.VADConfig

	reportCSV     string
	exportDir     string
	flushInterval time.Duration
	traceDSN      string
}

func loadConfig() config {
	vad := audio.DefaultVADConfig()
	vad.SpeechThresholdDB = env.Float("VAD_SPEECH_THRESHOLD_DB", vad.SpeechThresholdDB)
	vad.SilenceTimeout = env.Dur("VAD_SILENCE_TIMEOUT", vad.SilenceTimeout)

	return config{
		port: env.Str("AGENT_PORT", "8000"),

		deepgramAPIKey:   env.Str("DEEPGRAM_API_KEY", ""),
		deepgramModel:    env.Str("DEEPGRAM_MODEL", "nova-3"),
		deepgramLanguage: env.Str("DEEPGRAM_LANGUAGE", "multi"),
		utteranceEndMs:   env.Int("DEEPGRAM_UTTERANCE_END_MS", 1000),
		whisperURL:       env.Str("WHISPER_SERVER_URL", ""),
		sttPoolSize:      env.Int("STT_POOL_SIZE", 50),

		groqAPIKey:   env.Str("GROQ_API_KEY", ""),
		groqBaseURL:  env.Str("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		groqModel:    env.Str("GROQ_MODEL", "llama3-8b-8192"),
		openaiAPIKey: env.Str("OPENAI_API_KEY", ""),
		openaiModel:  env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		llmMaxTokens: env.Int("LLM_MAX_TOKENS", 250),

		cartesiaAPIKey:    env.Str("CARTESIA_API_KEY", ""),
		cartesiaModel:     env.Str("CARTESIA_MODEL", "sonic-2"),
		cartesiaVoiceID:   env.Str("CARTESIA_VOICE_ID", "f786b574-daa5-4673-aa0c-ebfc75d6505d"),
		ttsSampleRate:     env.Int("TTS_SAMPLE_RATE", 24000),
		elevenlabsAPIKey:  env.Str("ELEVENLABS_API_KEY", ""),
		elevenlabsVoiceID: env.Str("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		elevenlabsModelID: env.Str("ELEVENLABS_MODEL_ID", "eleven_turbo_v2_5"),
		ttsPoolSize:       env.Int("TTS_POOL_SIZE", 50),

		systemPrompt:         env.Str("AGENT_SYSTEM_PROMPT", prompts.DefaultSystem),
		greeting:             env.Str("AGENT_GREETING", prompts.DefaultGreeting),
		greetingEnabled:      env.Bool("AGENT_GREETING_ENABLED", true),
		ttsSpeed:             env.Float("TTS_SPEED", 0),
		interSentencePauseMs: env.Int("INTER_SENTENCE_PAUSE_MS", 0),

		maxConcurrentSessions: env.Int("MAX_CONCURRENT_SESSIONS", 100),
		vadConfig:             vad,

		reportCSV:     env.Str("REPORT_CSV", "data/turn_metrics.csv"),
		exportDir:     env.Str("REPORT_EXPORT_DIR", "data/sessions"),
		flushInterval: env.Dur("REPORT_FLUSH_INTERVAL", 10*time.Second),
		traceDSN:      env.Str("TRACE_DB_URL", ""),
	}
}
