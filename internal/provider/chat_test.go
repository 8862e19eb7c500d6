package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatTestSettings(baseURL string) Settings {
	return Settings{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: baseURL,
		Retry:   fastRetry(2),
		Timeout: 5 * time.Second,
	}
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}))
}

func TestChatStrategy_Translate(t *testing.T) {
	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		chatReply(t, w, "  Bună dimineața  ")
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", bearerHeaders("test-key"))
	got, err := s.Translate(context.Background(), "Good morning", "en", "ro", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bună dimineața", got)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "English")
	assert.Contains(t, captured.Messages[0].Content, "Romanian")
	assert.Equal(t, "Good morning", captured.Messages[1].Content)
	assert.Equal(t, "test-model", captured.Model)
	assert.False(t, captured.Stream)
}

func TestChatStrategy_TranslateBatch_ContextIsolation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Messages[0].Content, batchInstruction)

		// Echo every unit back translated, context included.
		chatReply(t, w, `[{"position":10,"line":"zece"},{"position":11,"line":"unsprezece"},{"position":12,"line":"doisprezece"}]`)
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	units := []BatchUnit{
		{Position: 10, Line: "ten", ContextOnly: true},
		{Position: 11, Line: "eleven"},
		{Position: 12, Line: "twelve", ContextOnly: true},
	}
	got, err := s.TranslateBatch(context.Background(), units, "en", "ro")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{11: "unsprezece"}, got)
}

func TestChatStrategy_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		chatReply(t, w, "done")
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	got, err := s.Translate(context.Background(), "text", "en", "fr", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatStrategy_RateLimitExhaustion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	_, err := s.Translate(context.Background(), "text", "en", "fr", nil, nil)

	var rateLimit *RateLimitError
	require.ErrorAs(t, err, &rateLimit)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, IsTranslationError(err))
}

func TestChatStrategy_OtherHTTPFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	_, err := s.Translate(context.Background(), "text", "en", "fr", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, IsTranslationError(err))
}

func TestChatStrategy_EmptyCompletionIsContractError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"choices": []any{}}))
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	_, err := s.Translate(context.Background(), "text", "en", "fr", nil, nil)

	var contract *ContractError
	require.ErrorAs(t, err, &contract)
}

func TestChatStrategy_GetModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "gpt-4o"}, {"id": "gpt-4o-mini"}},
		}))
	}))
	defer server.Close()

	s := newChatStrategy("openai", chatTestSettings(server.URL), "", nil)
	models, err := s.GetModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-4o", "gpt-4o-mini"}, models)
}
