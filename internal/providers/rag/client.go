// Package rag retrieves passages from the internal travel document index.
package rag

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/redis/go-redis/v9"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
	"travel-assistant/internal/slots"
)

const (
	CorpusPolicy       = "policy"
	CorpusDestinations = "destinations"

	cachePrefix = "ai:rag:"
)

var ErrSearchFailed = errors.New("RAG_SEARCH_FAILED")

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	Index      string
	MaxResults int
	MinScore   float64
	CacheTTL   time.Duration
}

// Client runs full-text search over the travel_docs index. Answers are
// cached in Redis keyed by corpus and normalized question.
type Client struct {
	config Config
	es     *elasticsearch.Client
	cache  redis.Cmdable
	logger Logger
}

// document is the shape stored in the index.
type document struct {
	Corpus string `json:"corpus"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Body   string `json:"body"`
}

// NewClient creates a retriever. cache may be nil.
func NewClient(cfg Config, es *elasticsearch.Client, cache redis.Cmdable, log Logger) *Client {
	if cfg.Index == "" {
		cfg.Index = "travel_docs"
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 3
	}
	return &Client{
		config: cfg,
		es:     es,
		cache:  cache,
		logger: log.With(map[string]interface{}{"collaborator": "rag"}),
	}
}

// Query searches the index, restricted to corpusHint when it is set.
func (c *Client) Query(ctx context.Context, question, corpusHint string) (*models.RAGAnswer, error) {
	key := c.cacheKey(question, corpusHint)
	if cached, ok := c.fromCache(ctx, key); ok {
		return cached, nil
	}

	docs, scores, err := c.search(ctx, question, corpusHint)
	if err != nil {
		c.logger.Warn("retrieval failed", map[string]interface{}{
			"corpus": corpusHint,
			"error":  err.Error(),
		})
		return nil, apperrors.NewRAGQueryFailedError(corpusHint, err)
	}

	answer := &models.RAGAnswer{Corpus: corpusHint, Citations: []models.Citation{}}
	var passages []string
	for i, d := range docs {
		answer.Citations = append(answer.Citations, models.Citation{
			URL:     d.URL,
			Title:   d.Title,
			Snippet: snippet(d.Body, 200),
			Score:   scores[i],
		})
		if i < 2 {
			passages = append(passages, snippet(d.Body, 400))
		}
	}
	answer.Summary = strings.Join(passages, "\n\n")

	if answer.Found() {
		c.toCache(ctx, key, answer)
	}

	c.logger.Info("retrieval completed", map[string]interface{}{
		"corpus":      corpusHint,
		"resultCount": len(answer.Citations),
	})
	return answer, nil
}

func (c *Client) search(ctx context.Context, question, corpus string) ([]document, []float64, error) {
	must := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  question,
				"fields": []string{"title^2", "body"},
			},
		},
	}
	boolQuery := map[string]interface{}{"must": must}
	if corpus != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{
				"term": map[string]interface{}{"corpus": corpus},
			},
		}
	}

	queryBody := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": boolQuery,
		},
		"size": c.config.MaxResults,
	}
	if c.config.MinScore > 0 {
		queryBody["min_score"] = c.config.MinScore
	}

	body, err := json.Marshal(queryBody)
	if err != nil {
		return nil, nil, err
	}
	req := esapi.SearchRequest{
		Index: []string{c.config.Index},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				Score  float64  `json:"_score"`
				Source document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}

	docs := make([]document, 0, len(r.Hits.Hits))
	scores := make([]float64, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		if h.Source.Body == "" && h.Source.Title == "" {
			continue
		}
		docs = append(docs, h.Source)
		scores = append(scores, h.Score)
	}
	return docs, scores, nil
}

func (c *Client) cacheKey(question, corpus string) string {
	sum := sha1.Sum([]byte(slots.Normalize(question)))
	return cachePrefix + corpus + ":" + hex.EncodeToString(sum[:])
}

func (c *Client) fromCache(ctx context.Context, key string) (*models.RAGAnswer, bool) {
	if c.cache == nil {
		return nil, false
	}
	val, err := c.cache.Get(ctx, key).Result()
	if err != nil {
		return nil, false
	}
	var answer models.RAGAnswer
	if err := json.Unmarshal([]byte(val), &answer); err != nil {
		return nil, false
	}
	return &answer, true
}

func (c *Client) toCache(ctx context.Context, key string, answer *models.RAGAnswer) {
	if c.cache == nil || c.config.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(answer)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.config.CacheTTL).Err(); err != nil {
		c.logger.Warn("rag cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := strings.LastIndex(s[:max], " ")
	if cut <= 0 {
		cut = max
	}
	return s[:cut] + "…"
}
