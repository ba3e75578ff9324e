package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/MikeSquared-Agency/vellum/internal/chat"
)

// Ollama uses the native chat endpoint of a local Ollama server.
type Ollama struct {
	client    *api.Client
	model     string
	maxTokens int
}

// NewOllama accepts base URLs with or without a trailing /v1.
func NewOllama(baseURL, model string, maxTokens int, hc *http.Client) (*Ollama, error) {
	base := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url %q: %w", baseURL, err)
	}
	return &Ollama{
		client:    api.NewClient(u, hc),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (o *Ollama) Model() string { return o.model }

func (o *Ollama) Complete(ctx context.Context, messages []chat.Message) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   &stream,
	}
	if o.maxTokens > 0 {
		req.Options = map[string]any{"num_predict": o.maxTokens}
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{Role: string(m.Role), Content: m.Content})
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if sb.Len() == 0 {
		return "", chat.ErrEmptyResponse
	}
	return sb.String(), nil
}
