package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnCompletedParsing(t *testing.T) {
	raw := `{
		"game_id": "g-1",
		"turn": 3,
		"prompt": "Hide",
		"reply": "[text]Safe.",
		"segments": 1,
		"choices": ["a", "b", "c"],
		"ended": false,
		"dropped": 2
	}`

	var ev TurnCompleted
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))

	assert.Equal(t, "g-1", ev.GameID)
	assert.Equal(t, 3, ev.Turn)
	assert.Equal(t, "Hide", ev.Prompt)
	assert.Equal(t, []string{"a", "b", "c"}, ev.Choices)
	assert.Equal(t, 2, ev.Dropped)
}

func TestAttributeAppliedOmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(AttributeApplied{GameID: "g", Name: "SAN", Delta: -5, Value: 95, Reason: "fear"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)
	assert.Contains(t, string(data), `"delta":-5`)
}

func TestEventSubjects(t *testing.T) {
	tests := []struct {
		ev      Event
		subject string
	}{
		{GameStarted{GameID: "g"}, SubjectGameStarted},
		{TurnCompleted{GameID: "g"}, SubjectTurnCompleted},
		{AttributeApplied{GameID: "g"}, SubjectAttributeApplied},
		{RequestFailed{GameID: "g"}, SubjectRequestFailed},
		{GameEnded{GameID: "g"}, SubjectGameEnded},
	}
	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			assert.Equal(t, tt.subject, tt.ev.Subject())
			assert.Equal(t, "g", tt.ev.Game())
		})
	}
}

func TestDecode(t *testing.T) {
	ended := GameEnded{
		GameID:     "g-2",
		Story:      "lighthouse",
		EndText:    "Dark.",
		Turns:      4,
		Attributes: map[string]float64{"SAN": 0},
		EndedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(ended)
	require.NoError(t, err)

	ev, err := Decode(SubjectGameEnded, data)
	require.NoError(t, err)
	assert.Equal(t, ended, ev)

	_, err = Decode("vellum.unknown", data)
	assert.Error(t, err)

	_, err = Decode(SubjectTurnCompleted, []byte("{"))
	assert.Error(t, err)
}

func TestNewMessageSetsGameHeader(t *testing.T) {
	msg, err := newMessage(TurnCompleted{GameID: "g-3", Turn: 1})
	require.NoError(t, err)

	assert.Equal(t, SubjectTurnCompleted, msg.Subject)
	assert.Equal(t, "g-3", msg.Header.Get(HeaderGameID))
	assert.Contains(t, string(msg.Data), `"turn":1`)
}
