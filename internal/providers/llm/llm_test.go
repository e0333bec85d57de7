package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel-assistant/internal/common/config"
	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/models"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

func TestGateway_Complete(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"text":"  Pack layers.  ","confidence":0.9}`))
	}))
	defer server.Close()

	c := NewGatewayClient(GatewayConfig{
		BaseURL:  server.URL,
		Timeout:  time.Second,
		Defaults: models.CompletionOptions{MaxTokens: 300, Temperature: 0.2},
	}, &TestLogger{t: t})

	text, err := c.Complete(context.Background(), "what to pack", models.CompletionOptions{JSON: true})

	require.NoError(t, err)
	assert.Equal(t, "Pack layers.", text)
	assert.Equal(t, 300, got.MaxTokens)
	assert.Equal(t, 0.2, got.Temperature)
	assert.Equal(t, "json", got.ResponseFormat)
}

func TestGateway_EmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	c := NewGatewayClient(GatewayConfig{BaseURL: server.URL, Timeout: time.Second}, &TestLogger{t: t})
	_, err := c.Complete(context.Background(), "x", models.CompletionOptions{})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
	assert.Equal(t, apperrors.ErrCodeLLMCompletionFailed, apperrors.CodeOf(err))
}

func TestGateway_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"text":"late"}`))
	}))
	defer server.Close()

	c := NewGatewayClient(GatewayConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond}, &TestLogger{t: t})
	_, err := c.Complete(context.Background(), "x", models.CompletionOptions{})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLLMTimeout, apperrors.CodeOf(err))
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.APIs.GenAI.BaseURL = "http://localhost:1"

	c, err := New(context.Background(), cfg, &TestLogger{t: t})
	require.NoError(t, err)
	assert.IsType(t, &GatewayClient{}, c)

	cfg.APIs.GenAI.Provider = "gemini"
	_, err = New(context.Background(), cfg, &TestLogger{t: t})
	assert.Error(t, err, "gemini without a key must fail")

	cfg.APIs.GenAI.Provider = "carrier-pigeon"
	_, err = New(context.Background(), cfg, &TestLogger{t: t})
	assert.Error(t, err)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	assert.Equal(t, "", responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("{\"a\":"), genai.Text("1}")}},
		}},
	}
	assert.Equal(t, `{"a":1}`, responseText(resp))
}

func TestWithDefaults(t *testing.T) {
	opts := withDefaults(models.CompletionOptions{}, models.CompletionOptions{})
	assert.Equal(t, 500, opts.MaxTokens)

	opts = withDefaults(models.CompletionOptions{MaxTokens: 10, Temperature: 0.9}, models.CompletionOptions{MaxTokens: 800, Temperature: 0.1})
	assert.Equal(t, 10, opts.MaxTokens)
	assert.Equal(t, 0.9, opts.Temperature)
}
