// Package llm holds the completion clients behind the assistant's LLM
// interface: the internal AI gateway and Google Gemini.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"travel-assistant/internal/common/config"
	"travel-assistant/internal/models"
)

const (
	ProviderGateway = "gateway"
	ProviderGemini  = "gemini"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Completer is satisfied by every client in this package.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error)
	Close() error
}

// New picks the client named by cfg.APIs.GenAI.Provider.
func New(ctx context.Context, cfg *config.Config, log Logger) (Completer, error) {
	genai := cfg.APIs.GenAI
	defaults := models.CompletionOptions{
		MaxTokens:   genai.MaxTokens,
		Temperature: genai.Temperature,
	}

	switch strings.ToLower(genai.Provider) {
	case "", ProviderGateway:
		return NewGatewayClient(GatewayConfig{
			BaseURL:    genai.BaseURL,
			APIKey:     genai.APIKey,
			Timeout:    time.Duration(genai.Timeout) * time.Millisecond,
			MaxRetries: genai.MaxRetries,
			Defaults:   defaults,
		}, log), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:   cfg.APIs.Gemini.APIKey,
			Model:    cfg.APIs.Gemini.Model,
			Defaults: defaults,
		}, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", genai.Provider)
	}
}

func withDefaults(opts, defaults models.CompletionOptions) models.CompletionOptions {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 500
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaults.Temperature
	}
	return opts
}
