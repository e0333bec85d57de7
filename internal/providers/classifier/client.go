package classifier

import (
	"context"
	"errors"
	"time"

	apperrors "travel-assistant/internal/common/errors"
	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// Client talks to the structured classification and NER service.
type Client struct {
	http   *apihttp.Client
	logger Logger
}

// NewClient creates a classifier client.
func NewClient(cfg Config, log Logger) *Client {
	return &Client{
		http: apihttp.NewClient(cfg.BaseURL, cfg.Timeout,
			apihttp.WithBearerToken(cfg.APIKey),
			apihttp.WithRetries(cfg.MaxRetries),
		),
		logger: log.With(map[string]interface{}{"collaborator": "classifier"}),
	}
}

func (c *Client) Classify(ctx context.Context, kind string, text string) (models.Label, error) {
	var resp struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	err := c.http.PostJSON(ctx, "/api/ai/classify", map[string]string{
		"kind": kind,
		"text": text,
	}, &resp)
	if err != nil {
		return models.Label{}, c.wrap("classify", err)
	}
	return models.Label{Name: resp.Label, Confidence: clamp(resp.Confidence)}, nil
}

func (c *Client) DetectLanguage(ctx context.Context, text string) (models.Language, error) {
	var resp struct {
		Code       string  `json:"code"`
		Confidence float64 `json:"confidence"`
		Mixed      bool    `json:"mixed"`
	}
	if err := c.http.PostJSON(ctx, "/api/ai/language", map[string]string{"text": text}, &resp); err != nil {
		return models.Language{}, c.wrap("language", err)
	}
	return models.Language{Code: resp.Code, Confidence: clamp(resp.Confidence), Mixed: resp.Mixed}, nil
}

// ExtractEntities returns typed entity spans for text.
func (c *Client) ExtractEntities(ctx context.Context, text string) (*models.ExtractionResult, error) {
	var resp struct {
		Entities   []models.Entity `json:"entities"`
		Confidence float64         `json:"confidence"`
	}
	if err := c.http.PostJSON(ctx, "/api/ai/entities", map[string]string{"text": text}, &resp); err != nil {
		return nil, c.wrap("entities", err)
	}

	er := &models.ExtractionResult{Entities: resp.Entities, Confidence: clamp(resp.Confidence)}
	for _, e := range resp.Entities {
		span := models.Span{Text: e.Value, Score: e.Score}
		switch e.Type {
		case models.EntityLocation:
			er.Locations = append(er.Locations, span)
		case models.EntityDate:
			er.Dates = append(er.Dates, span)
		case models.EntityMoney:
			er.Money = append(er.Money, span)
		case models.EntityDuration:
			er.Durations = append(er.Durations, span)
		}
	}
	return er, nil
}

func (c *Client) wrap(op string, err error) error {
	c.logger.Warn("classifier call failed", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})
	if errors.Is(err, apihttp.ErrTimeout) {
		return apperrors.NewClassifierTimeoutError(err)
	}
	return apperrors.NewClassifierFailedError(err)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
