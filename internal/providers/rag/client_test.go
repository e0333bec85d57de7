package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
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

func setupRedis(t *testing.T) *redis.Client {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func setupES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return es
}

const policyHits = `{"hits":{"hits":[
	{"_score":7.1,"_source":{"corpus":"policy","title":"Baggage allowance","url":"https://docs.example.com/baggage","body":"Economy fares include one checked bag up to 23kg."}},
	{"_score":3.2,"_source":{"corpus":"policy","title":"Carry-on","url":"https://docs.example.com/carry-on","body":"One cabin bag and one personal item."}}
]}}`

func TestQuery_BuildsAnswerAndCaches(t *testing.T) {
	var calls int32
	es := setupES(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/travel_docs/_search"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
		assert.Len(t, filter, 1)

		w.Write([]byte(policyHits))
	})

	c := NewClient(Config{CacheTTL: time.Minute}, es, setupRedis(t), &TestLogger{t: t})

	answer, err := c.Query(context.Background(), "How many bags can I check?", CorpusPolicy)
	require.NoError(t, err)
	assert.True(t, answer.Found())
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, "Baggage allowance", answer.Citations[0].Title)
	assert.Equal(t, 7.1, answer.Citations[0].Score)
	assert.Contains(t, answer.Summary, "23kg")

	again, err := c.Query(context.Background(), "how many bags can I   check?", CorpusPolicy)
	require.NoError(t, err)
	assert.Equal(t, answer.Citations, again.Citations)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQuery_NoHits(t *testing.T) {
	es := setupES(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hits":{"hits":[]}}`))
	})

	c := NewClient(Config{CacheTTL: time.Minute}, es, nil, &TestLogger{t: t})
	answer, err := c.Query(context.Background(), "pet policy", CorpusPolicy)

	require.NoError(t, err)
	assert.False(t, answer.Found())
	assert.Empty(t, answer.Summary)
}

func TestQuery_SearchError(t *testing.T) {
	es := setupES(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"index_not_found_exception"}}`))
	})

	c := NewClient(Config{}, es, nil, &TestLogger{t: t})
	_, err := c.Query(context.Background(), "pet policy", CorpusPolicy)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSearchFailed)
	assert.Equal(t, apperrors.ErrCodeRAGQueryFailed, apperrors.CodeOf(err))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short", snippet("  short ", 10))
	assert.Equal(t, "one two…", snippet("one two three", 9))
}
