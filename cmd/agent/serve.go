package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/spf13/cobra"

	"github.com/voicekit/agent/internal/pipeline"
	"github.com/voicekit/agent/internal/report"
	"github.com/voicekit/agent/internal/trace"
	"github.com/voicekit/agent/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice agent WebSocket server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	// STT backends: Deepgram live streaming when a key is present, local
	// whisper batch as fallback.
	sttFallback := "whisper"
	if cfg.deepgramAPIKey != "" {
		sttFallback = "deepgram"
	}
	sttRouter := pipeline.NewSTTRouter(sttFallback)
	if cfg.deepgramAPIKey != "" {
		sttRouter.Register("deepgram", pipeline.NewDeepgramClient(cfg.deepgramAPIKey, cfg.deepgramModel, cfg.deepgramLanguage, cfg.utteranceEndMs, cfg.sttPoolSize))
	}
	if cfg.whisperURL != "" {
		sttRouter.Register("whisper", pipeline.NewWhisperClient(cfg.whisperURL, cfg.sttPoolSize))
	}
	if len(sttRouter.Engines()) == 0 {
		return fmt.Errorf("no STT backend configured: set DEEPGRAM_API_KEY or WHISPER_SERVER_URL")
	}

	// LLM backends: Groq's OpenAI-compatible API via a direct streaming
	// client, the OpenAI platform through the agents SDK.
	llmFallback := "openai"
	if cfg.groqAPIKey != "" {
		llmFallback = "groq"
	}
	llmRouter := pipeline.NewLLMRouter(llmFallback, cfg.llmMaxTokens)
	if cfg.groqAPIKey != "" {
		llmRouter.RegisterClient("groq", pipeline.NewOpenAIChatClient(cfg.groqAPIKey, cfg.groqBaseURL, cfg.groqModel, cfg.llmMaxTokens), cfg.groqModel)
	}
	if cfg.openaiAPIKey != "" {
		provider := agents.NewOpenAIProvider(agents.OpenAIProviderParams{
			APIKey:       param.NewOpt(cfg.openaiAPIKey),
			UseResponses: param.NewOpt(false),
		})
		llmRouter.RegisterProvider("openai", provider, cfg.openaiModel)
	}
	if len(llmRouter.Engines()) == 0 {
		return fmt.Errorf("no LLM backend configured: set GROQ_API_KEY or OPENAI_API_KEY")
	}

	ttsHTTP := pipeline.NewPooledHTTPClient(cfg.ttsPoolSize, 30*time.Second)
	ttsFallback := "elevenlabs"
	if cfg.cartesiaAPIKey != "" {
		ttsFallback = "cartesia"
	}
	ttsRouter := pipeline.NewTTSRouter(ttsFallback)
	if cfg.cartesiaAPIKey != "" {
		ttsRouter.Register("cartesia", pipeline.NewCartesiaSynthesizer(cfg.cartesiaAPIKey, cfg.cartesiaModel, cfg.cartesiaVoiceID, cfg.ttsSampleRate, ttsHTTP))
	}
	if cfg.elevenlabsAPIKey != "" {
		ttsRouter.Register("elevenlabs", pipeline.NewElevenLabsSynthesizer(cfg.elevenlabsAPIKey, cfg.elevenlabsVoiceID, cfg.elevenlabsModelID, ttsHTTP))
	}
	if len(ttsRouter.Engines()) == 0 {
		return fmt.Errorf("no TTS backend configured: set CARTESIA_API_KEY or ELEVENLABS_API_KEY")
	}

	reporter := report.NewReporter(cfg.reportCSV)

	var traceStore *trace.Store
	if cfg.traceDSN != "" {
		store, err := trace.Open(cfg.traceDSN)
		if err != nil {
			slog.Warn("trace store unavailable, tracing disabled", "error", err)
		} else {
			defer store.Close()
			traceStore = store
			slog.Info("trace store enabled")
		}
	}

	greeting := cfg.greeting
	if !cfg.greetingEnabled {
		greeting = ""
	}

	handler := ws.NewHandler(ws.HandlerConfig{
		STTClient:            sttRouter,
		LLMClient:            llmRouter,
		TTSClient:            ttsRouter,
		VADConfig:            cfg.vadConfig,
		Reporter:             reporter,
		ExportDir:            cfg.exportDir,
		Trace:                traceStore,
		MaxConcurrent:        cfg.maxConcurrentSessions,
		FlushInterval:        cfg.flushInterval,
		SystemPrompt:         cfg.systemPrompt,
		Greeting:             greeting,
		TTSSpeed:             cfg.ttsSpeed,
		InterSentencePauseMs: cfg.interSentencePauseMs,
	})

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		sttRouter:  sttRouter,
		llmRouter:  llmRouter,
		ttsRouter:  ttsRouter,
		wsHandler:  handler,
		traceStore: traceStore,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("agent starting",
		"addr", addr,
		"stt_engines", sttRouter.Engines(),
		"llm_engines", llmRouter.Engines(),
		"tts_engines", ttsRouter.Engines(),
		"report_csv", cfg.reportCSV,
	)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	// Final flush so buffered rows from in-flight sessions are not lost.
	if err := reporter.Flush(); err != nil {
		slog.Error("final report flush", "error", err)
	}

	slog.Info("agent stopped")
	return nil
}
