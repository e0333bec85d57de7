package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "travel-assistant/internal/common/errors"
	"travel-assistant/internal/dispatcher"
	"travel-assistant/internal/models"
)

type TestLogger struct {
	t *testing.T
}

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

type stubTurns struct {
	mu      sync.Mutex
	threads []string
	result  *models.TurnResult
	err     error
	panics  int
}

func (s *stubTurns) ProcessTurn(ctx context.Context, threadID, message string) (*models.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = append(s.threads, threadID)
	if s.panics > 0 {
		s.panics--
		panic("dispatcher blew up")
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubStore struct {
	receipts models.Receipts
	intent   models.Intent
	err      error
	deleted  []string
	patches  []map[string]string
	missing  []string
	cleared  int
}

func (s *stubStore) Update(ctx context.Context, threadID string, patch map[string]string, missing []string) error {
	s.patches = append(s.patches, patch)
	s.missing = missing
	return s.err
}

func (s *stubStore) SetLastIntent(ctx context.Context, threadID string, intent models.Intent) error {
	s.intent = intent
	return s.err
}

func (s *stubStore) GetLastIntent(ctx context.Context, threadID string) (models.Intent, error) {
	return s.intent, s.err
}

func (s *stubStore) SetReceipts(ctx context.Context, threadID string, receipts models.Receipts) error {
	s.receipts = receipts
	s.cleared++
	return s.err
}

func (s *stubStore) GetReceipts(ctx context.Context, threadID string) (models.Receipts, error) {
	return s.receipts, s.err
}

func (s *stubStore) Delete(ctx context.Context, threadID string) error {
	s.deleted = append(s.deleted, threadID)
	return s.err
}

type stubHistory struct {
	limit int
}

func (s *stubHistory) Recent(ctx context.Context, threadID string, limit int) ([]models.Receipts, error) {
	s.limit = limit
	return []models.Receipts{{ID: "r-1", Reply: "hi"}}, nil
}

func buildTestRouter(t *testing.T, deps Deps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if deps.Locks == nil {
		deps.Locks = dispatcher.NewThreadLocks()
	}
	return NewServer(deps, &TestLogger{t: t}).Routes()
}

func doRequest(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChat_ReturnsReply(t *testing.T) {
	turns := &stubTurns{result: &models.TurnResult{
		Done:      true,
		Reply:     "Sunny in Tokyo.",
		Citations: []models.Citation{{URL: "https://example.com", Title: "Forecast"}},
	}}
	r := buildTestRouter(t, Deps{Turns: turns, Store: &stubStore{}})

	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"threadId": "t-1", "message": "weather in Tokyo"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t-1", resp.ThreadID)
	assert.True(t, resp.Done)
	assert.Equal(t, "Sunny in Tokyo.", resp.Reply)
	assert.Len(t, resp.Citations, 1)
}

func TestChat_AssignsThreadID(t *testing.T) {
	turns := &stubTurns{result: &models.TurnResult{Done: true, Reply: "ok"}}
	r := buildTestRouter(t, Deps{Turns: turns, Store: &stubStore{}})

	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"message": "hello"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.ThreadID, 36)
	assert.Equal(t, []string{resp.ThreadID}, turns.threads)
	assert.NotNil(t, resp.Citations)
}

func TestChat_BadRequests(t *testing.T) {
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: &stubStore{}})

	tests := []struct {
		name string
		body interface{}
	}{
		{"not json", "just text"},
		{"bad thread id", map[string]string{"threadId": "../etc", "message": "hi"}},
		{"message too long", map[string]string{"threadId": "t", "message": string(make([]byte, maxMessageLength+1))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(r, http.MethodPost, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestChat_TurnErrors(t *testing.T) {
	r := buildTestRouter(t, Deps{Turns: &stubTurns{err: apperrors.NewInvalidTurnInputError("threadId is required")}, Store: &stubStore{}})
	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"threadId": "t-2", "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TURN_INPUT")

	r = buildTestRouter(t, Deps{Turns: &stubTurns{err: errors.New("boom")}, Store: &stubStore{}})
	w = doRequest(r, http.MethodPost, "/api/chat", map[string]string{"threadId": "t-2", "message": "hi"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReceipts(t *testing.T) {
	store := &stubStore{receipts: models.Receipts{Reply: "Sunny", Facts: []models.Fact{{Source: "weather", Key: "Tokyo"}}}}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodGet, "/api/threads/t-1/receipts", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got models.Receipts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Sunny", got.Reply)
	assert.Len(t, got.Facts, 1)
}

func TestReceiptHistory(t *testing.T) {
	history := &stubHistory{}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: &stubStore{}, History: history})

	w := doRequest(r, http.MethodGet, "/api/threads/t-1/receipts/history?limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistorySize, history.limit)
	assert.Contains(t, w.Body.String(), "r-1")

	w = doRequest(r, http.MethodGet, "/api/threads/t-1/receipts/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r = buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: &stubStore{}})
	w = doRequest(r, http.MethodGet, "/api/threads/t-1/receipts/history", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestResetThread(t *testing.T) {
	store := &stubStore{}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodDelete, "/api/threads/t-9", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"t-9"}, store.deleted)
}

func TestChat_PanicReleasesThreadLock(t *testing.T) {
	turns := &stubTurns{result: &models.TurnResult{Done: true, Reply: "ok"}, panics: 1}
	r := buildTestRouter(t, Deps{Turns: turns, Store: &stubStore{}})

	w := doRequest(r, http.MethodPost, "/api/chat", map[string]string{"threadId": "t-3", "message": "hi"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	done := make(chan int, 1)
	go func() {
		done <- doRequest(r, http.MethodPost, "/api/chat", map[string]string{"threadId": "t-3", "message": "hi again"}).Code
	}()
	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("thread lock still held after a panicking turn")
	}
}

func TestThreadInfo(t *testing.T) {
	store := &stubStore{intent: models.IntentWeather}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodGet, "/api/threads/t-1", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var got threadInfoResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "t-1", got.ThreadID)
	assert.Equal(t, models.IntentWeather, got.LastIntent)
}

func TestPatchSlots(t *testing.T) {
	store := &stubStore{}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodPatch, "/api/threads/t-1/slots", map[string]interface{}{
		"slots":           map[string]string{"city": "Lisbon"},
		"expectedMissing": []string{"dates"},
		"lastIntent":      "weather",
	})

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, store.patches, 1)
	assert.Equal(t, "Lisbon", store.patches[0]["city"])
	assert.Equal(t, []string{"dates"}, store.missing)
	assert.Equal(t, models.IntentWeather, store.intent)
}

func TestPatchSlots_Rejected(t *testing.T) {
	store := &stubStore{}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodPatch, "/api/threads/t-1/slots", map[string]interface{}{"lastIntent": "teleport"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPatch, "/api/threads/t-1/slots", "just text")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, store.patches)

	r = buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: &stubStore{err: errors.New("redis down")}})
	w = doRequest(r, http.MethodPatch, "/api/threads/t-1/slots", map[string]interface{}{"slots": map[string]string{"city": "Oslo"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClearReceipts(t *testing.T) {
	store := &stubStore{receipts: models.Receipts{Reply: "Sunny"}}
	r := buildTestRouter(t, Deps{Turns: &stubTurns{}, Store: store})

	w := doRequest(r, http.MethodDelete, "/api/threads/t-1/receipts", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, store.cleared)
	assert.Empty(t, store.receipts.Reply)
}

func TestHealthAndReady(t *testing.T) {
	r := buildTestRouter(t, Deps{
		Turns: &stubTurns{},
		Store: &stubStore{},
		Ready: map[string]ReadyCheck{
			"redis": func(ctx context.Context) error { return nil },
		},
	})
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, http.MethodGet, "/metrics", nil).Code)

	r = buildTestRouter(t, Deps{
		Turns: &stubTurns{},
		Store: &stubStore{},
		Ready: map[string]ReadyCheck{
			"postgres": func(ctx context.Context) error { return errors.New("connection refused") },
		},
	})
	w := doRequest(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "postgres")
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(&TestLogger{t: t}))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := doRequest(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
