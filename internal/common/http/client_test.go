package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/ai/classify", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "weather in Tokyo", body["text"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"label":"weather","confidence":0.93}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second, WithBearerToken("secret"))

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	err := c.PostJSON(context.Background(), "/api/ai/classify", map[string]string{"text": "weather in Tokyo"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "weather", out.Label)
	assert.Equal(t, 0.93, out.Confidence)
}

func TestClient_RetriesOn5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second, WithRetries(2), WithBackoff(time.Millisecond))

	var out map[string]bool
	err := c.GetJSON(context.Background(), "/x", url.Values{"q": []string{"rome"}}, &out)

	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestClient_DoesNotRetry4xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second, WithRetries(3), WithBackoff(time.Millisecond))
	err := c.PostJSON(context.Background(), "/x", map[string]string{}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRequestFailed))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.URL, 50*time.Millisecond, WithRetries(2))

	start := time.Now()
	err := c.PostJSON(context.Background(), "/slow", map[string]string{}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Less(t, time.Since(start), 180*time.Millisecond)
}
