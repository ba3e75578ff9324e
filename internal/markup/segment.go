package markup

// Kind identifies which variant a Segment holds.
type Kind int

const (
	KindText Kind = iota
	KindSound
	KindAttribute
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSound:
		return "sound"
	case KindAttribute:
		return "attribute"
	default:
		return "unknown"
	}
}

// AttributeChange is a signed delta for a named attribute plus the narrative
// reason that is revealed to the player like ordinary text.
type AttributeChange struct {
	Name   string `json:"name"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// Segment is one unit of turn playback. Exactly one of the payload fields is
// meaningful, selected by Kind. Use the constructors rather than literals.
type Segment struct {
	Kind      Kind             `json:"kind"`
	Text      string           `json:"text,omitempty"`
	Cue       string           `json:"cue,omitempty"`
	Attribute *AttributeChange `json:"attribute,omitempty"`
}

func Text(content string) Segment {
	return Segment{Kind: KindText, Text: content}
}

func Sound(cue string) Segment {
	return Segment{Kind: KindSound, Cue: cue}
}

func Attribute(name string, delta int, reason string) Segment {
	return Segment{Kind: KindAttribute, Attribute: &AttributeChange{Name: name, Delta: delta, Reason: reason}}
}

// Display returns the text revealed for the segment. Sound segments have none.
func (s Segment) Display() string {
	switch s.Kind {
	case KindText:
		return s.Text
	case KindAttribute:
		if s.Attribute != nil {
			return s.Attribute.Reason
		}
	}
	return ""
}

// ParsedTurn is the structured form of one model response.
type ParsedTurn struct {
	Segments []Segment `json:"segments"`
	// Choices holds zero or exactly three options.
	Choices []string `json:"choices"`
	// EndText is non-nil when the response carried an [end] marker.
	EndText *string `json:"end_text,omitempty"`
	// Dropped counts non-blank lines that matched no directive.
	Dropped int `json:"dropped"`
}

// Ended reports whether the turn finishes the story.
func (t ParsedTurn) Ended() bool {
	return t.EndText != nil
}
