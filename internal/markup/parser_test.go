package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullTurn(t *testing.T) {
	turn := Parse("[text]Hello\n[sound]bell\n[attribute=SAN.-5]scary\n[choice]A|B|C")

	require.Len(t, turn.Segments, 3)
	assert.Equal(t, Text("Hello"), turn.Segments[0])
	assert.Equal(t, Sound("bell"), turn.Segments[1])
	assert.Equal(t, Attribute("SAN", -5, "scary"), turn.Segments[2])
	assert.Equal(t, []string{"A", "B", "C"}, turn.Choices)
	assert.Nil(t, turn.EndText)
	assert.False(t, turn.Ended())
	assert.Zero(t, turn.Dropped)
}

func TestParse_LastChoiceLineWins(t *testing.T) {
	turn := Parse("[choice]A|B\n[choice]X|Y|Z")

	assert.Equal(t, []string{"X", "Y", "Z"}, turn.Choices)
}

func TestParse_ChoiceLineReplacesEarlierOne(t *testing.T) {
	turn := Parse("[choice]A|B|C\n[text]middle\n[choice] X | Y |Z ")

	assert.Equal(t, []string{"X", "Y", "Z"}, turn.Choices)
	require.Len(t, turn.Segments, 1)
}

func TestParse_ChoiceLineWithWrongCountIsDropped(t *testing.T) {
	turn := Parse("[choice]A|B|C\n[choice]only|two")

	assert.Equal(t, []string{"A", "B", "C"}, turn.Choices)
	assert.Equal(t, 1, turn.Dropped)
}

func TestParse_ChoiceDropsEmptyParts(t *testing.T) {
	turn := Parse("[choice]A||B| |C|")

	assert.Equal(t, []string{"A", "B", "C"}, turn.Choices)
}

func TestParse_MalformedAttributeDropped(t *testing.T) {
	turn := Parse("[attribute=SAN.5]up\n[attribute=BAD]ignored")

	require.Len(t, turn.Segments, 1)
	assert.Equal(t, Attribute("SAN", 5, "up"), turn.Segments[0])
	assert.Equal(t, 1, turn.Dropped)
}

func TestParse_AttributeVariants(t *testing.T) {
	tests := []struct {
		name string
		line string
		want *AttributeChange
	}{
		{"explicit plus", "[attribute=HP.+10]healed", &AttributeChange{Name: "HP", Delta: 10, Reason: "healed"}},
		{"no sign", "[attribute=gold.3] found coins ", &AttributeChange{Name: "gold", Delta: 3, Reason: "found coins"}},
		{"empty reason", "[attribute=SAN.0]", &AttributeChange{Name: "SAN", Delta: 0, Reason: ""}},
		{"unicode name", "[attribute=理智.-2]惊吓", &AttributeChange{Name: "理智", Delta: -2, Reason: "惊吓"}},
		{"dotted name", "[attribute=a.b.5]x", nil},
		{"missing delta", "[attribute=SAN.]x", nil},
		{"non numeric", "[attribute=SAN.five]x", nil},
		{"float delta", "[attribute=SAN.1.5]x", nil},
		{"unterminated", "[attribute=SAN.5 x", nil},
		{"overflow", "[attribute=SAN.99999999999999999999999]x", nil},
		{"empty name", "[attribute=.5]x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn := Parse(tt.line)
			if tt.want == nil {
				assert.Empty(t, turn.Segments)
				assert.Equal(t, 1, turn.Dropped)
				return
			}
			require.Len(t, turn.Segments, 1)
			assert.Equal(t, KindAttribute, turn.Segments[0].Kind)
			assert.Equal(t, tt.want, turn.Segments[0].Attribute)
		})
	}
}

func TestParse_EndMarker(t *testing.T) {
	turn := Parse("[text]The door closes.\n[end]First ending\n[end] The End ")

	require.NotNil(t, turn.EndText)
	assert.Equal(t, "The End", *turn.EndText)
	assert.True(t, turn.Ended())
	require.Len(t, turn.Segments, 1)
}

func TestParse_EmptyEndMarkerStillEnds(t *testing.T) {
	turn := Parse("[end]")

	require.NotNil(t, turn.EndText)
	assert.Equal(t, "", *turn.EndText)
}

func TestParse_EndAndChoicesBothKept(t *testing.T) {
	turn := Parse("[choice]A|B|C\n[end]fin")

	assert.Equal(t, []string{"A", "B", "C"}, turn.Choices)
	require.NotNil(t, turn.EndText)
}

func TestParse_SkipsBlankAndUnknownLines(t *testing.T) {
	raw := strings.Join([]string{
		"",
		"   ",
		"Sure! Here is the next scene:",
		"  [text]  Rain falls.  ",
		"[TEXT]wrong case",
		"[sound]   ",
		"[text]",
		"\t[sound]thunder\t",
	}, "\n")

	turn := Parse(raw)

	assert.Equal(t, []Segment{Text("Rain falls."), Sound("thunder")}, turn.Segments)
	assert.Equal(t, 4, turn.Dropped)
}

func TestParse_CRLF(t *testing.T) {
	turn := Parse("[text]one\r\n[text]two\r\n[choice]a|b|c\r\n")

	assert.Equal(t, []Segment{Text("one"), Text("two")}, turn.Segments)
	assert.Equal(t, []string{"a", "b", "c"}, turn.Choices)
}

func TestParse_PreservesInterleavedOrder(t *testing.T) {
	turn := Parse("[sound]a\n[text]b\n[attribute=X.1]c\n[sound]d\n[text]e")

	kinds := make([]Kind, len(turn.Segments))
	for i, s := range turn.Segments {
		kinds[i] = s.Kind
	}
	assert.Equal(t, []Kind{KindSound, KindText, KindAttribute, KindSound, KindText}, kinds)
}

func TestParse_EmptyInput(t *testing.T) {
	turn := Parse("")

	assert.NotNil(t, turn.Segments)
	assert.Empty(t, turn.Segments)
	assert.Empty(t, turn.Choices)
	assert.Nil(t, turn.EndText)
}

func TestSegmentDisplay(t *testing.T) {
	assert.Equal(t, "hi", Text("hi").Display())
	assert.Equal(t, "", Sound("bell").Display())
	assert.Equal(t, "why", Attribute("A", 1, "why").Display())
	assert.Equal(t, "", Segment{Kind: KindAttribute}.Display())
}

func FuzzParse(f *testing.F) {
	f.Add("[text]Hello\n[sound]bell\n[attribute=SAN.-5]scary\n[choice]A|B|C")
	f.Add("[attribute=SAN.5]up\n[attribute=BAD]ignored")
	f.Add("[choice]|||\n[end]\n[attribute=.]")
	f.Add("\x00[text]\xff\xfe")

	f.Fuzz(func(t *testing.T, raw string) {
		turn := Parse(raw)
		if n := len(turn.Choices); n != 0 && n != ChoiceCount {
			t.Fatalf("choices length %d", n)
		}
		for _, s := range turn.Segments {
			if s.Kind == KindAttribute && s.Attribute == nil {
				t.Fatal("attribute segment without payload")
			}
		}
	})
}
