package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/vellum/internal/chat"
	"github.com/MikeSquared-Agency/vellum/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var history = []chat.Message{
	{Role: chat.RoleSystem, Content: "you are a narrator"},
	{Role: chat.RoleUser, Content: "Begin"},
}

func TestAnthropic_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "you are a narrator", req.System)
		assert.Equal(t, []anthropicMessage{{Role: "user", Content: "Begin"}}, req.Messages)
		assert.Equal(t, 100, req.MaxTokens)

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "[text]Rain."},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	a := NewAnthropic("test-key", "test-model", 100, server.Client())
	a.url = server.URL

	reply, err := a.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "[text]Rain.", reply)
}

func TestAnthropic_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": "max_tokens is too large",
			},
		})
	}))
	defer server.Close()

	a := NewAnthropic("test-key", "test-model", 100, server.Client())
	a.url = server.URL

	_, err := a.Complete(context.Background(), history)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens is too large")
}

func TestAnthropic_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer server.Close()

	a := NewAnthropic("test-key", "test-model", 100, server.Client())
	a.url = server.URL

	_, err := a.Complete(context.Background(), history)
	assert.ErrorIs(t, err, chat.ErrEmptyResponse)
}

func TestOpenAI_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "Begin", req.Messages[1].Content)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": "[text]Fog."},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	o := NewOpenAI("test-key", server.URL, "test-model", 100, server.Client())

	reply, err := o.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "[text]Fog.", reply)
}

func TestOpenAI_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	o := NewOpenAI("test-key", server.URL, "test-model", 100, server.Client())

	_, err := o.Complete(context.Background(), history)
	assert.Error(t, err)
}

func TestOllama_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req struct {
			Model    string `json:"model"`
			Stream   *bool  `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.NotNil(t, req.Stream)
		assert.False(t, *req.Stream)
		assert.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "llama3",
			"message": map[string]string{"role": "assistant", "content": "[text]Wind."},
			"done":    true,
		})
	}))
	defer server.Close()

	o, err := NewOllama(server.URL+"/v1", "llama3", 0, server.Client())
	require.NoError(t, err)

	reply, err := o.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "[text]Wind.", reply)
}

func TestNew_SelectsProvider(t *testing.T) {
	base := config.Config{
		LLMAPIKey:         "k",
		LLMBaseURL:        "http://localhost:11434",
		LLMModel:          "m",
		LLMRequestTimeout: time.Second,
	}

	for _, provider := range []string{config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama} {
		cfg := base
		cfg.LLMProvider = provider
		b, err := New(cfg, discardLogger())
		require.NoError(t, err, provider)
		assert.Equal(t, "m", b.Model())
	}

	cfg := base
	cfg.LLMProvider = "telegraph"
	_, err := New(cfg, discardLogger())
	assert.Error(t, err)
}

type stubBackend struct{ err error }

func (s stubBackend) Model() string { return "stub" }
func (s stubBackend) Complete(context.Context, []chat.Message) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "[text]ok", nil
}

func TestInstrument_PassesThrough(t *testing.T) {
	reply, err := Instrument("stub", stubBackend{}).Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "[text]ok", reply)

	boom := errors.New("boom")
	_, err = Instrument("stub", stubBackend{err: boom}).Complete(context.Background(), history)
	assert.ErrorIs(t, err, boom)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]chat.Message{
		{Role: chat.RoleSystem, Content: "a"},
		{Role: chat.RoleUser, Content: "u"},
		{Role: chat.RoleSystem, Content: "b"},
		{Role: chat.RoleAssistant, Content: "x"},
	})
	assert.Equal(t, "a\n\nb", system)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "u"},
		{Role: chat.RoleAssistant, Content: "x"},
	}, rest)
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("ab"))
	assert.Equal(t, 3, approxTokens("twelve chars"))
}
