// Package llm adapts chat completion providers to chat.Backend.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/vellum/internal/chat"
	"github.com/MikeSquared-Agency/vellum/internal/config"
	"github.com/MikeSquared-Agency/vellum/internal/metrics"
)

// New builds the backend selected by cfg.LLMProvider.
func New(cfg config.Config, logger *slog.Logger) (chat.Backend, error) {
	hc := httpClient(cfg)

	var b chat.Backend
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		b = NewOpenAI(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxTokens, hc)
	case config.ProviderAnthropic:
		b = NewAnthropic(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMMaxTokens, hc)
	case config.ProviderOllama:
		o, err := NewOllama(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMMaxTokens, hc)
		if err != nil {
			return nil, err
		}
		b = o
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	logger.Info("llm backend ready", "provider", cfg.LLMProvider, "model", cfg.LLMModel, "base_url", cfg.LLMBaseURL)
	return Instrument(cfg.LLMProvider, b), nil
}

func httpClient(cfg config.Config) *http.Client {
	return &http.Client{
		Timeout: cfg.LLMRequestTimeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: cfg.LLMConnectTimeout}).DialContext,
			TLSHandshakeTimeout:   cfg.LLMConnectTimeout,
			IdleConnTimeout:       cfg.LLMIdleTimeout,
			MaxIdleConnsPerHost:   2,
			ExpectContinueTimeout: time.Second,
		},
	}
}

type instrumented struct {
	chat.Backend
	provider string
}

// Instrument records request counts and latency for b.
func Instrument(provider string, b chat.Backend) chat.Backend {
	return &instrumented{Backend: b, provider: provider}
}

func (i *instrumented) Complete(ctx context.Context, messages []chat.Message) (string, error) {
	start := time.Now()
	reply, err := i.Backend.Complete(ctx, messages)
	metrics.LLMDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())

	status := metrics.StatusSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = metrics.StatusTimeout
	case err != nil:
		status = metrics.StatusError
	}
	metrics.LLMRequests.WithLabelValues(i.provider, status).Inc()
	return reply, err
}

// splitSystem pulls system turns out of the history for APIs that take the
// system prompt as a separate field.
func splitSystem(messages []chat.Message) (string, []chat.Message) {
	var system string
	rest := make([]chat.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == chat.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
