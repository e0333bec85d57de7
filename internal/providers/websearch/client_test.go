package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "travel-assistant/internal/common/errors"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "visa rules Japan", q.Get("q"))
		assert.Equal(t, "key-1", q.Get("key"))
		assert.Equal(t, "cx-1", q.Get("cx"))
		assert.Equal(t, "2", q.Get("num"))
		w.Write([]byte(`{"items":[
			{"link":"https://blog.example.com/japan","title":"Japan tips","snippet":"A blog."},
			{"link":"https://blog.example.com/japan","title":"dup","snippet":"dup"},
			{"link":"https://files.example.com/visa.pdf","title":"PDF","mime":"application/pdf"},
			{"link":"https://www.mofa.go.jp/visa","title":"Official visa page","snippet":"Visa exemption applies."},
			{"link":"https://other.example.com","title":"Other","snippet":"Other."}
		]}`))
	}))
	defer server.Close()

	c := NewClient(Config{
		BaseURL:    server.URL,
		APIKey:     "key-1",
		EngineID:   "cx-1",
		Timeout:    time.Second,
		MaxResults: 2,
	}, &TestLogger{t: t})

	res, err := c.Search(context.Background(), "  visa   rules Japan ")

	require.NoError(t, err)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "https://www.mofa.go.jp/visa", res.Sources[0].URL)
	assert.Equal(t, "https://blog.example.com/japan", res.Sources[1].URL)
	assert.Equal(t, "Visa exemption applies. A blog.", res.Summary)
}

func TestSearch_Failure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, &TestLogger{t: t})
	_, err := c.Search(context.Background(), "anything")

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeWebSearchFailed, apperrors.CodeOf(err))
}

func TestSearch_NoItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, Timeout: time.Second}, &TestLogger{t: t})
	res, err := c.Search(context.Background(), "anything")

	require.NoError(t, err)
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.Summary)
}
