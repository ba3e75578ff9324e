package api

import (
	"log/slog"
	"sync"

	"github.com/MikeSquared-Agency/vellum/internal/audio"
	"github.com/MikeSquared-Agency/vellum/internal/markup"
)

// Event types sent on a game's websocket.
const (
	EventReveal         = "reveal"
	EventRevealed       = "revealed"
	EventChoices        = "choices"
	EventCue            = "cue"
	EventEnded          = "ended"
	EventRequestStarted = "request_started"
	EventRequestFailed  = "request_failed"
	EventAttribute      = "attribute"
	EventSnapshot       = "snapshot"
)

type Event struct {
	Type      string                  `json:"type"`
	Index     int                     `json:"index"`
	Text      string                  `json:"text,omitempty"`
	Choices   []string                `json:"choices,omitempty"`
	Cue       string                  `json:"cue,omitempty"`
	URL       string                  `json:"url,omitempty"`
	Attribute *markup.AttributeChange `json:"attribute,omitempty"`
	Value     *float64                `json:"value,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Snapshot  any                     `json:"snapshot,omitempty"`
}

const subscriberBuffer = 256

// Hub is a playback.View that broadcasts callbacks to websocket
// subscribers. A subscriber that falls behind loses events rather than
// stalling the game.
type Hub struct {
	sounds *audio.Library
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewHub(sounds *audio.Library, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sounds: sounds,
		logger: logger,
		subs:   make(map[chan Event]struct{}),
	}
}

// Subscribe returns a channel of events and a func that ends the
// subscription. The channel is closed when either is called or the hub
// closes.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}

func (h *Hub) broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("websocket subscriber lagging, event dropped", "type", e.Type)
		}
	}
}

func (h *Hub) RevealChunk(index int, partial string) {
	h.broadcast(Event{Type: EventReveal, Index: index, Text: partial})
}

func (h *Hub) SegmentRevealComplete(index int) {
	h.broadcast(Event{Type: EventRevealed, Index: index})
}

func (h *Hub) ShowChoices(choices []string) {
	h.broadcast(Event{Type: EventChoices, Choices: append([]string(nil), choices...)})
}

// PlayCue sends the cue with the URL of its file when one exists; the
// client plays it.
func (h *Hub) PlayCue(cue string) {
	e := Event{Type: EventCue, Cue: cue}
	if h.sounds != nil {
		if url, err := h.sounds.URL(cue); err == nil {
			e.URL = url
		} else {
			h.logger.Warn("sound cue unresolved", "cue", cue, "error", err)
		}
	}
	h.broadcast(e)
}

func (h *Hub) StoryEnded(text string) {
	h.broadcast(Event{Type: EventEnded, Text: text})
}

func (h *Hub) RequestStarted() {
	h.broadcast(Event{Type: EventRequestStarted})
}

func (h *Hub) RequestFailed(err error) {
	h.broadcast(Event{Type: EventRequestFailed, Error: err.Error()})
}

func (h *Hub) AttributeApplied(change markup.AttributeChange, value float64, err error) {
	// Value is always sent with an attribute; zero is a real value.
	e := Event{Type: EventAttribute, Attribute: &change, Value: &value}
	if err != nil {
		e.Error = err.Error()
	}
	h.broadcast(e)
}
