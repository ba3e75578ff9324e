package playback

import "fmt"

type State int

const (
	Idle State = iota
	Typing
	SegmentRevealed
	AwaitingChoice
	AwaitingBackendResponse
	Ended
)

var stateNames = map[State]string{
	Idle:                    "idle",
	Typing:                  "typing",
	SegmentRevealed:         "revealed",
	AwaitingChoice:          "awaiting_choice",
	AwaitingBackendResponse: "awaiting_response",
	Ended:                   "ended",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
