package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "travel-assistant/internal/common/errors"
	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

var ErrEmptyCompletion = errors.New("EMPTY_COMPLETION")

type GatewayConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	Defaults   models.CompletionOptions
}

// GatewayClient calls the internal AI gateway's generate endpoint.
type GatewayClient struct {
	http     *apihttp.Client
	defaults models.CompletionOptions
	logger   Logger
}

type generateRequest struct {
	Prompt         string  `json:"prompt"`
	MaxTokens      int     `json:"max_tokens"`
	Temperature    float64 `json:"temperature"`
	ResponseFormat string  `json:"response_format,omitempty"`
}

type generateResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewGatewayClient creates a client for an HTTP completion gateway.
func NewGatewayClient(cfg GatewayConfig, log Logger) *GatewayClient {
	return &GatewayClient{
		http: apihttp.NewClient(cfg.BaseURL, cfg.Timeout,
			apihttp.WithBearerToken(cfg.APIKey),
			apihttp.WithRetries(cfg.MaxRetries),
		),
		defaults: cfg.Defaults,
		logger: log.With(map[string]interface{}{
			"collaborator": "llm",
			"provider":     ProviderGateway,
		}),
	}
}

func (c *GatewayClient) Complete(ctx context.Context, prompt string, opts models.CompletionOptions) (string, error) {
	opts = withDefaults(opts, c.defaults)
	req := generateRequest{
		Prompt:      prompt,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSON {
		req.ResponseFormat = "json"
	}

	start := time.Now()
	var resp generateResponse
	if err := c.http.PostJSON(ctx, "/api/ai/generate", req, &resp); err != nil {
		c.logger.Warn("completion failed", map[string]interface{}{
			"error":    err.Error(),
			"duration": time.Since(start).Milliseconds(),
		})
		if errors.Is(err, apihttp.ErrTimeout) {
			return "", apperrors.NewLLMTimeoutError(err)
		}
		return "", apperrors.NewLLMCompletionFailedError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", apperrors.NewLLMCompletionFailedError(fmt.Errorf("%w: gateway returned no text", ErrEmptyCompletion))
	}

	c.logger.Info("completion received", map[string]interface{}{
		"duration": time.Since(start).Milliseconds(),
		"chars":    len(text),
	})
	return text, nil
}

func (c *GatewayClient) Close() error { return nil }
