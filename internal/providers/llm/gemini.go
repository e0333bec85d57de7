package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
)

const defaultGeminiModel = "gemini-2.0-flash"

type GeminiConfig struct {
	APIKey   string
	Model    string
	Defaults models.CompletionOptions
}

// GeminiClient completes prompts with Google's Gemini models.
type GeminiClient struct {
	client    *genai.Client
	modelName string
	defaults  models.CompletionOptions
	logger    Logger
}

// NewGeminiClient creates a client for the Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	name := cfg.Model
	if name == "" {
		name = defaultGeminiModel
	}
	return &GeminiClient{
		client:    client,
		modelName: name,
		defaults:  cfg.Defaults,
		logger: log.With(map[string]interface{}{
			"collaborator": "llm",
			"provider":     ProviderGemini,
			"model":        name,
		}),
	}, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error) {
	opts = withDefaults(opts, g.defaults)

	// GenerativeModel carries per-call settings, so each call gets its own.
	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(float32(opts.Temperature))
	model.SetMaxOutputTokens(int32(opts.MaxTokens))
	if opts.JSON {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		g.logger.Warn("gemini generation error", map[string]interface{}{"error": err.Error()})
		if ctx.Err() != nil {
			return "", apperrors.NewLLMTimeoutError(err)
		}
		return "", apperrors.NewLLMCompletionFailedError(err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: no response candidates from Gemini", ErrEmptyCompletion))
	}
	return text, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
