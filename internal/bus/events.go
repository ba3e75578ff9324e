package bus

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	SubjectGameStarted      = "vellum.game.started"
	SubjectTurnCompleted    = "vellum.turn.completed"
	SubjectAttributeApplied = "vellum.attribute.applied"
	SubjectRequestFailed    = "vellum.request.failed"
	SubjectGameEnded        = "vellum.game.ended"

	// SubjectAll matches every game event.
	SubjectAll = "vellum.>"
)

// Event is a game event. Its subject is fixed by its type.
type Event interface {
	Subject() string
	Game() string
}

type GameStarted struct {
	GameID    string    `json:"game_id"`
	Story     string    `json:"story"`
	Model     string    `json:"model"`
	StartedAt time.Time `json:"started_at"`
}

// TurnCompleted is emitted after each successful exchange with the model.
type TurnCompleted struct {
	GameID   string   `json:"game_id"`
	Turn     int      `json:"turn"`
	Prompt   string   `json:"prompt"`
	Reply    string   `json:"reply"`
	Segments int      `json:"segments"`
	Choices  []string `json:"choices"`
	Ended    bool     `json:"ended"`
	Dropped  int      `json:"dropped"`
}

type AttributeApplied struct {
	GameID string  `json:"game_id"`
	Name   string  `json:"name"`
	Delta  int     `json:"delta"`
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
	Error  string  `json:"error,omitempty"`
}

type RequestFailed struct {
	GameID  string `json:"game_id"`
	Prompt  string `json:"prompt"`
	Error   string `json:"error"`
	Timeout bool   `json:"timeout"`
}

type GameEnded struct {
	GameID     string             `json:"game_id"`
	Story      string             `json:"story"`
	EndText    string             `json:"end_text"`
	Turns      int                `json:"turns"`
	Attributes map[string]float64 `json:"attributes"`
	EndedAt    time.Time          `json:"ended_at"`
}

func (GameStarted) Subject() string      { return SubjectGameStarted }
func (TurnCompleted) Subject() string    { return SubjectTurnCompleted }
func (AttributeApplied) Subject() string { return SubjectAttributeApplied }
func (RequestFailed) Subject() string    { return SubjectRequestFailed }
func (GameEnded) Subject() string        { return SubjectGameEnded }

func (e GameStarted) Game() string      { return e.GameID }
func (e TurnCompleted) Game() string    { return e.GameID }
func (e AttributeApplied) Game() string { return e.GameID }
func (e RequestFailed) Game() string    { return e.GameID }
func (e GameEnded) Game() string        { return e.GameID }

// Decode unmarshals data published on subject into its event type.
func Decode(subject string, data []byte) (Event, error) {
	switch subject {
	case SubjectGameStarted:
		return decode[GameStarted](subject, data)
	case SubjectTurnCompleted:
		return decode[TurnCompleted](subject, data)
	case SubjectAttributeApplied:
		return decode[AttributeApplied](subject, data)
	case SubjectRequestFailed:
		return decode[RequestFailed](subject, data)
	case SubjectGameEnded:
		return decode[GameEnded](subject, data)
	}
	return nil, fmt.Errorf("decode %s: unknown subject", subject)
}

func decode[T Event](subject string, data []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", subject, err)
	}
	return ev, nil
}
