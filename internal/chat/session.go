// Package chat owns the conversation with the model backend for one
// playthrough.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Backend is a chat completion service. Implementations live in internal/llm.
type Backend interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// ErrEmptyResponse is returned when the backend answers with no text.
var ErrEmptyResponse = errors.New("empty response")

// RequestError is the recoverable failure of one exchange with the backend.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("chat %s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran past its deadline.
func (e *RequestError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// TokenCounter estimates the prompt size of a history. Optional.
type TokenCounter func(model string, messages []Message) int

type Options struct {
	// Timeout bounds each Submit call. Zero means no deadline beyond ctx.
	Timeout time.Duration
	Tokens  TokenCounter
}

// Session holds the conversation history: one system turn followed by
// strictly alternating user and assistant turns.
//
// Begin and Commit mutate the history and are meant to be called from one
// goroutine, the playback loop. Request only reads its argument and may run
// anywhere. mu lets other goroutines read the history.
type Session struct {
	backend Backend
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	history []Message
}

// NewSession seeds the history with the system prompt.
func NewSession(backend Backend, systemPrompt string, opts Options, logger *slog.Logger) (*Session, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, errors.New("system prompt is empty")
	}
	return &Session{
		backend: backend,
		opts:    opts,
		logger:  logger,
		history: []Message{{Role: RoleSystem, Content: systemPrompt}},
	}, nil
}

// ErrNoPendingTurn is returned by Commit when the history does not end in a
// user turn.
var ErrNoPendingTurn = errors.New("no pending user turn")

// Begin appends content as a user turn and returns the messages to send.
//
// If the last turn is a user turn left by a failed request, Begin replaces
// it instead of appending a second one, so a retry never duplicates the
// prompt.
func (s *Session) Begin(content string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := len(s.history) - 1; s.history[last].Role == RoleUser {
		s.history[last].Content = content
	} else {
		s.history = append(s.history, Message{Role: RoleUser, Content: content})
	}
	msgs := make([]Message, len(s.history))
	copy(msgs, s.history)
	return msgs
}

// Request sends msgs to the backend under the configured timeout and
// returns the reply. It does not touch the history.
func (s *Session) Request(ctx context.Context, msgs []Message) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	attrs := []any{"model", s.backend.Model(), "turns", len(msgs)}
	if s.opts.Tokens != nil {
		attrs = append(attrs, "prompt_tokens", s.opts.Tokens(s.backend.Model(), msgs))
	}
	s.logger.Info("requesting completion", attrs...)

	start := time.Now()
	reply, err := s.backend.Complete(ctx, msgs)
	if err != nil {
		s.logger.Warn("completion failed", "error", err, "duration", time.Since(start))
		return "", &RequestError{Op: "complete", Err: err}
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Warn("completion was empty", "duration", time.Since(start))
		return "", &RequestError{Op: "complete", Err: ErrEmptyResponse}
	}
	s.logger.Info("completion received", "duration", time.Since(start), "reply_len", len(reply))
	return reply, nil
}

// Commit appends reply as the assistant turn answering the pending user
// turn.
func (s *Session) Commit(reply string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history[len(s.history)-1].Role != RoleUser {
		return ErrNoPendingTurn
	}
	s.history = append(s.history, Message{Role: RoleAssistant, Content: reply})
	return nil
}

// Submit runs Begin, Request and Commit in turn. On failure the user turn
// stays in place for a retry.
func (s *Session) Submit(ctx context.Context, content string) (string, error) {
	reply, err := s.Request(ctx, s.Begin(content))
	if err != nil {
		return "", err
	}
	if err := s.Commit(reply); err != nil {
		return "", fmt.Errorf("commit reply: %w", err)
	}
	return reply, nil
}

// History returns a copy of the conversation.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of turns including the system turn.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Pending reports whether the last turn is a user turn awaiting a reply.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[len(s.history)-1].Role == RoleUser
}
