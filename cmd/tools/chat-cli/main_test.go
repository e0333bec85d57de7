package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "travel-assistant/internal/common/http"
	"travel-assistant/internal/models"
)

func newChatServer(t *testing.T, seen *[]chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*seen = append(*seen, req)

		thread := req.ThreadID
		if thread == "" {
			thread = "t-new"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			ThreadID:  thread,
			Done:      true,
			Reply:     "echo: " + req.Message,
			Citations: []models.Citation{{Title: "Guide", URL: "https://example.com/guide"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSend(t *testing.T) {
	var seen []chatRequest
	srv := newChatServer(t, &seen)
	client := apihttp.NewClient(srv.URL, time.Second, apihttp.WithRetries(0))

	resp, err := send(context.Background(), client, "t-1", "weather in Tokyo")
	require.NoError(t, err)

	assert.Equal(t, "t-1", resp.ThreadID)
	assert.Equal(t, "echo: weather in Tokyo", resp.Reply)
	require.Len(t, seen, 1)
	assert.Equal(t, "t-1", seen[0].ThreadID)
}

func TestRepl_KeepsAssignedThread(t *testing.T) {
	var seen []chatRequest
	srv := newChatServer(t, &seen)
	client := apihttp.NewClient(srv.URL, time.Second, apihttp.WithRetries(0))

	threadID = ""
	in := strings.NewReader("hello\n\nwhat about Lisbon?\n/quit\nnever sent\n")
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), client, in, &out))

	require.Len(t, seen, 2)
	assert.Equal(t, "", seen[0].ThreadID)
	assert.Equal(t, "t-new", seen[1].ThreadID)
	assert.Contains(t, out.String(), "echo: what about Lisbon?")
	assert.Contains(t, out.String(), "[1] Guide https://example.com/guide")
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"message is required"}`))
	}))
	defer srv.Close()

	_, err := send(context.Background(), apihttp.NewClient(srv.URL, time.Second), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat request")
}
