// Package markup parses the line-oriented directive language the model is
// prompted to emit:
//
//	[text]<prose>
//	[sound]<cue>
//	[attribute=<name>.<signed int>]<reason>
//	[choice]<a>|<b>|<c>
//	[end]<closing text>
//
// Parsing never fails. Anything that does not match a directive exactly is
// dropped and counted in ParsedTurn.Dropped.
package markup

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	prefixText      = "[text]"
	prefixSound     = "[sound]"
	prefixAttribute = "[attribute="
	prefixChoice    = "[choice]"
	prefixEnd       = "[end]"

	// ChoiceCount is the number of options a [choice] line must offer.
	ChoiceCount = 3
)

var attributePattern = regexp.MustCompile(`^\[attribute=([^.\]]+)\.([+-]?\d+)\](.*)$`)

// Parse converts one raw model response into a ParsedTurn.
func Parse(raw string) ParsedTurn {
	turn := ParsedTurn{
		Segments: []Segment{},
		Choices:  []string{},
	}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, prefixText):
			content := strings.TrimSpace(line[len(prefixText):])
			if content == "" {
				turn.Dropped++
				continue
			}
			turn.Segments = append(turn.Segments, Text(content))

		case strings.HasPrefix(line, prefixSound):
			cue := strings.TrimSpace(line[len(prefixSound):])
			if cue == "" {
				turn.Dropped++
				continue
			}
			turn.Segments = append(turn.Segments, Sound(cue))

		case strings.HasPrefix(line, prefixAttribute):
			seg, ok := parseAttribute(line)
			if !ok {
				turn.Dropped++
				continue
			}
			turn.Segments = append(turn.Segments, seg)

		case strings.HasPrefix(line, prefixChoice):
			choices := splitChoices(line[len(prefixChoice):])
			if len(choices) != ChoiceCount {
				turn.Dropped++
				continue
			}
			turn.Choices = choices

		case strings.HasPrefix(line, prefixEnd):
			end := strings.TrimSpace(line[len(prefixEnd):])
			turn.EndText = &end

		default:
			turn.Dropped++
		}
	}

	return turn
}

func parseAttribute(line string) (Segment, bool) {
	m := attributePattern.FindStringSubmatch(line)
	if m == nil {
		return Segment{}, false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return Segment{}, false
	}
	delta, err := strconv.Atoi(m[2])
	if err != nil {
		// Out of range for int.
		return Segment{}, false
	}
	return Attribute(name, delta, strings.TrimSpace(m[3])), true
}

func splitChoices(s string) []string {
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
