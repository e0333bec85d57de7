package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

// HTTPConfig configures an HTTP-backed tool.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type WeatherClient struct {
	http   *apihttp.Client
	logger Logger
}

type forecastDay struct {
	Date      string  `json:"date"`
	HighC     float64 `json:"high_c"`
	LowC      float64 `json:"low_c"`
	Condition string  `json:"condition"`
	RainProb  float64 `json:"rain_probability"`
}

type forecastResponse struct {
	City    string        `json:"city"`
	Country string        `json:"country"`
	Source  string        `json:"source"`
	Days    []forecastDay `json:"days"`
	Climate string        `json:"climate"`
}

// NewWeatherClient creates a forecast tool client.
func NewWeatherClient(cfg HTTPConfig, log Logger) *WeatherClient {
	return &WeatherClient{
		http: apihttp.NewClient(cfg.BaseURL, cfg.Timeout,
			apihttp.WithHeader("X-API-Key", cfg.APIKey),
			apihttp.WithRetries(cfg.MaxRetries),
		),
		logger: log.With(map[string]interface{}{"tool": ToolWeather}),
	}
}

// Weather returns a forecast for city over dates (free text such as
// "next week" or "2025-06-01..2025-06-05"). When no forecast exists for
// the range the service falls back to a climate summary.
func (c *WeatherClient) Weather(ctx context.Context, city, dates string) (*models.ToolResult, error) {
	params := url.Values{}
	params.Set("city", city)
	if dates != "" {
		params.Set("dates", dates)
	}

	var resp forecastResponse
	if err := c.http.GetJSON(ctx, "/v1/forecast", params, &resp); err != nil {
		if notFound(err) {
			return models.ToolFailure(fmt.Sprintf("I couldn't find weather data for %s.", city)), nil
		}
		c.logger.Warn("weather lookup failed", map[string]interface{}{"city": city, "error": err.Error()})
		return nil, toolError(ToolWeather, err)
	}

	if len(resp.Days) == 0 && resp.Climate == "" {
		return models.ToolFailure(fmt.Sprintf("No forecast is available for %s yet.", city)), nil
	}

	name := resp.City
	if name == "" {
		name = city
	}
	source := resp.Source
	if source == "" {
		source = ToolWeather
	}

	result := &models.ToolResult{OK: true}
	if len(resp.Days) == 0 {
		result.Summary = fmt.Sprintf("Typical weather in %s: %s", name, resp.Climate)
		result.Facts = append(result.Facts, models.Fact{Source: source, Key: "climate", Value: resp.Climate})
		return result, nil
	}

	lines := make([]string, 0, len(resp.Days))
	for _, d := range resp.Days {
		line := fmt.Sprintf("%s: %s, %.0f–%.0f°C", d.Date, d.Condition, d.LowC, d.HighC)
		if d.RainProb > 0 {
			line += fmt.Sprintf(", %.0f%% chance of rain", d.RainProb*100)
		}
		lines = append(lines, line)
		result.Facts = append(result.Facts, models.Fact{
			Source: source,
			Key:    "forecast:" + d.Date,
			Value:  fmt.Sprintf("%s %.0f/%.0f", d.Condition, d.LowC, d.HighC),
		})
	}
	result.Summary = fmt.Sprintf("Weather in %s:\n%s", name, strings.Join(lines, "\n"))
	return result, nil
}
