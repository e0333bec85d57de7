package websearch

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
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
	BaseURL      string
	APIKey       string
	EngineID     string
	Timeout      time.Duration
	MaxResults   int
	MinRelevance float64
}

// Client queries a Custom Search style JSON API.
type Client struct {
	config Config
	http   *apihttp.Client
	logger Logger
}

var whitespace = regexp.MustCompile(`\s+`)

// NewClient creates a web search client.
func NewClient(cfg Config, log Logger) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	return &Client{
		config: cfg,
		http:   apihttp.NewClient(cfg.BaseURL, cfg.Timeout),
		logger: log.With(map[string]interface{}{"collaborator": "web_search"}),
	}
}

type searchItem struct {
	Link    string `json:"link"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Mime    string `json:"mime"`
}

func (c *Client) Search(ctx context.Context, query string) (*models.SearchResult, error) {
	query = whitespace.ReplaceAllString(strings.TrimSpace(query), " ")

	params := url.Values{}
	params.Add("key", c.config.APIKey)
	params.Add("cx", c.config.EngineID)
	params.Add("q", query)
	params.Add("num", strconv.Itoa(c.config.MaxResults))

	var resp struct {
		Items []searchItem `json:"items"`
	}
	if err := c.http.GetJSON(ctx, "", params, &resp); err != nil {
		c.logger.Warn("web search failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		if errors.Is(err, apihttp.ErrTimeout) {
			return nil, apperrors.NewWebSearchTimeoutError(err)
		}
		return nil, apperrors.NewWebSearchFailedError(err)
	}

	sources := c.processResults(resp.Items)
	c.logger.Info("web search completed", map[string]interface{}{
		"query":       query,
		"resultCount": len(sources),
	})

	return &models.SearchResult{
		Query:   query,
		Sources: sources,
		Summary: summarize(sources),
	}, nil
}

func (c *Client) processResults(items []searchItem) []models.Citation {
	seen := make(map[string]bool)
	sources := make([]models.Citation, 0, len(items))

	for _, item := range items {
		if item.Mime != "" && !strings.Contains(item.Mime, "html") {
			continue
		}
		if item.Link == "" || seen[item.Link] {
			continue
		}
		seen[item.Link] = true

		score := relevance(item)
		if score < c.config.MinRelevance {
			continue
		}
		sources = append(sources, models.Citation{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			Score:   score,
		})
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Score > sources[j].Score
	})
	if len(sources) > c.config.MaxResults {
		sources = sources[:c.config.MaxResults]
	}
	return sources
}

// relevance favours official and government travel sources.
func relevance(item searchItem) float64 {
	score := 1.0
	link := strings.ToLower(item.Link)
	if strings.Contains(link, ".gov") || strings.Contains(link, ".edu") {
		score += 0.2
	}
	title := strings.ToLower(item.Title)
	if strings.Contains(title, "official") || strings.Contains(title, "tourism") {
		score += 0.1
	}
	return score
}

func summarize(sources []models.Citation) string {
	if len(sources) == 0 {
		return ""
	}
	var parts []string
	for i, s := range sources {
		if i == 3 {
			break
		}
		if s.Snippet != "" {
			parts = append(parts, strings.TrimSpace(s.Snippet))
		}
	}
	return strings.Join(parts, " ")
}
