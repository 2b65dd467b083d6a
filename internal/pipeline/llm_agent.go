package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/voicekit/agent/internal/metrics"
)

// LLMRouter dispatches chat requests by engine name. Engines registered
// with a ModelProvider run through the openai-agents-go SDK; engines
// registered with a direct client bypass it.
type LLMRouter struct {
	providers  map[string]agents.ModelProvider
	rawClients map[string]LLMChatClient
	models     map[string]string // engine → default model
	fallback   string
	maxTokens  int
}

// NewLLMRouter creates a router with the given fallback engine and token cap.
func NewLLMRouter(fallback string, maxTokens int) *LLMRouter {
	return &LLMRouter{
		providers:  make(map[string]agents.ModelProvider),
		rawClients: make(map[string]LLMChatClient),
		models:     make(map[string]string),
		fallback:   fallback,
		maxTokens:  maxTokens,
	}
}

// RegisterProvider adds an agents-SDK provider with its default model.
func (r *LLMRouter) RegisterProvider(engine string, provider agents.ModelProvider, defaultModel string) {
	r.providers[engine] = provider
	r.models[engine] = defaultModel
}

// RegisterClient adds a direct streaming client with its default model.
func (r *LLMRouter) RegisterClient(engine string, client LLMChatClient, defaultModel string) {
	r.rawClients[engine] = client
	r.models[engine] = defaultModel
}

// Engines returns the names of all registered backends.
func (r *LLMRouter) Engines() []string {
	seen := make(map[string]bool, len(r.providers)+len(r.rawClients))
	names := make([]string, 0, len(r.providers)+len(r.rawClients))
	for k := range r.providers {
		seen[k] = true
		names = append(names, k)
	}
	for k := range r.rawClients {
		if !seen[k] {
			names = append(names, k)
		}
	}
	return names
}

// Fallback returns the default engine name.
func (r *LLMRouter) Fallback() string {
	return r.fallback
}

// Has reports whether a backend is registered for the engine name.
func (r *LLMRouter) Has(engine string) bool {
	if _, ok := r.providers[engine]; ok {
		return true
	}
	_, ok := r.rawClients[engine]
	return ok
}

// Chat streams a completion from the resolved backend.
func (r *LLMRouter) Chat(ctx context.Context, userMessage, systemPrompt, model, engine string, onToken TokenCallback) (*LLMResult, error) {
	if raw, ok := r.rawClients[engine]; ok {
		useModel := model
		if useModel == "" {
			useModel = r.models[engine]
		}
		return raw.Chat(ctx, userMessage, systemPrompt, useModel, onToken)
	}
	if _, ok := r.providers[engine]; !ok {
		if raw, ok := r.rawClients[r.fallback]; ok {
			useModel := model
			if useModel == "" {
				useModel = r.models[r.fallback]
			}
			return raw.Chat(ctx, userMessage, systemPrompt, useModel, onToken)
		}
	}

	provider, useModel, err := r.resolve(engine, model)
	if err != nil {
		return nil, err
	}

	agent := agents.New("assistant").
		WithInstructions(systemPrompt).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(r.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userMessage)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "stream").Inc()
		return nil, fmt.Errorf("llm stream start: %w", err)
	}

	var textBuf strings.Builder
	var sr streamResult
	for ev := range events {
		handleStreamEvent(ev, &sr, onToken, &textBuf)
	}

	if streamErr := <-errCh; streamErr != nil {
		metrics.Errors.WithLabelValues("llm", "stream").Inc()
		return nil, fmt.Errorf("llm stream: %w", streamErr)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	ttft := float64(0)
	if !sr.ttft.IsZero() {
		ttft = float64(sr.ttft.Sub(start).Milliseconds())
	}

	return &LLMResult{
		Text:               textBuf.String(),
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttft,
	}, nil
}

func handleStreamEvent(ev agents.StreamEvent, sr *streamResult, onToken TokenCallback, textBuf *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok {
		return
	}
	if raw.Data.Type != "response.output_text.delta" {
		return
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(raw.Data.Delta)
	}
	textBuf.WriteString(raw.Data.Delta)
}

func (r *LLMRouter) resolve(engine, model string) (agents.ModelProvider, string, error) {
	provider, ok := r.providers[engine]
	if !ok {
		provider, ok = r.providers[r.fallback]
	}
	if !ok {
		return nil, "", fmt.Errorf("no llm backend for engine %q", engine)
	}

	useModel := model
	if useModel != "" {
		return provider, useModel, nil
	}

	useModel = r.models[engine]
	if useModel == "" {
		useModel = r.models[r.fallback]
	}
	return provider, useModel, nil
}
