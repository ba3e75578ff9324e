// Package playback drives one story turn at a time through the presentation
// state machine: typewriter reveal of each segment, cue playback, attribute
// application, choice gating and the end of the story.
//
// Controller holds the state and is not safe for concurrent use. Loop owns a
// Controller and serializes every input, tick and backend result onto one
// goroutine.
package playback

import (
	"github.com/MikeSquared-Agency/vellum/internal/markup"
)

// Applier receives attribute deltas when an attribute segment finishes
// revealing. *attributes.Store satisfies it.
type Applier interface {
	Apply(name string, delta int) (float64, error)
}

// Dispatcher starts a backend submission for prompt without blocking. The
// outcome must come back through Controller.Resolve.
type Dispatcher interface {
	Dispatch(prompt string)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(prompt string)

func (f DispatchFunc) Dispatch(prompt string) { f(prompt) }

type Controller struct {
	view     View
	attrs    Applier
	dispatch Dispatcher

	state   State
	turn    markup.ParsedTurn
	index   int
	tw      *Typewriter
	choices []string
	pending string
	failed  bool
	endText string
}

func NewController(view View, attrs Applier, dispatch Dispatcher) *Controller {
	return &Controller{
		view:     view,
		attrs:    attrs,
		dispatch: dispatch,
		choices:  []string{},
	}
}

// BeginTurn starts playback of a parsed response. It is accepted from Idle
// and while a backend response is awaited; otherwise it is ignored.
func (c *Controller) BeginTurn(turn markup.ParsedTurn) {
	if c.state != Idle && c.state != AwaitingBackendResponse {
		return
	}
	c.turn = turn
	c.pending = ""
	c.failed = false
	c.enter(0)
}

// Open sends the opening prompt of a playthrough.
func (c *Controller) Open(prompt string) {
	if c.state != Idle {
		return
	}
	c.submit(prompt)
}

// Tick reveals one more rune of the segment being typed.
func (c *Controller) Tick() {
	if c.state != Typing {
		return
	}
	partial, done := c.tw.Next()
	c.view.RevealChunk(c.index, partial)
	if done {
		c.reveal()
	}
}

// Skip force-completes the current reveal.
func (c *Controller) Skip() {
	if c.state != Typing {
		return
	}
	c.view.RevealChunk(c.index, c.tw.Finish())
	c.reveal()
}

// Advance moves past a fully revealed segment.
func (c *Controller) Advance() {
	if c.state != SegmentRevealed {
		return
	}
	c.enter(c.index + 1)
}

// Tap is the single click of the UI: skip while typing, advance otherwise.
func (c *Controller) Tap() {
	switch c.state {
	case Typing:
		c.Skip()
	case SegmentRevealed:
		c.Advance()
	}
}

// SelectChoice submits the label at index as the next user turn.
func (c *Controller) SelectChoice(index int) {
	if c.state != AwaitingChoice || index < 0 || index >= len(c.choices) {
		return
	}
	c.submit(c.choices[index])
}

// Retry resubmits the prompt whose request failed.
func (c *Controller) Retry() {
	if c.state != AwaitingChoice || !c.failed {
		return
	}
	c.submit(c.pending)
}

// Resolve delivers the outcome of the in-flight request. A failure returns
// to AwaitingChoice with the previous choices so the player can retry.
func (c *Controller) Resolve(turn markup.ParsedTurn, err error) {
	if c.state != AwaitingBackendResponse {
		return
	}
	if err != nil {
		c.failed = true
		c.state = AwaitingChoice
		c.view.RequestFailed(err)
		c.view.ShowChoices(c.choices)
		return
	}
	c.BeginTurn(turn)
}

func (c *Controller) submit(prompt string) {
	c.pending = prompt
	c.failed = false
	c.state = AwaitingBackendResponse
	c.view.RequestStarted()
	c.dispatch.Dispatch(prompt)
}

// enter starts segment i. Sound segments fire their cue and are passed
// over without waiting for input.
func (c *Controller) enter(i int) {
	segs := c.turn.Segments
	for i < len(segs) && segs[i].Kind == markup.KindSound {
		c.view.PlayCue(segs[i].Cue)
		i++
	}
	if i >= len(segs) {
		c.index = len(segs)
		c.tw = nil
		c.finish()
		return
	}
	c.index = i
	c.tw = NewTypewriter(segs[i].Display())
	c.state = Typing
}

// reveal is the Typing -> SegmentRevealed transition. Attribute deltas are
// applied here and nowhere else.
func (c *Controller) reveal() {
	c.state = SegmentRevealed
	seg := c.turn.Segments[c.index]
	if seg.Kind == markup.KindAttribute && seg.Attribute != nil {
		value, err := c.attrs.Apply(seg.Attribute.Name, seg.Attribute.Delta)
		c.view.AttributeApplied(*seg.Attribute, value, err)
	}
	c.view.SegmentRevealComplete(c.index)
}

func (c *Controller) finish() {
	if c.turn.EndText != nil {
		c.state = Ended
		c.endText = *c.turn.EndText
		c.view.StoryEnded(c.endText)
		return
	}
	c.choices = c.turn.Choices
	if c.choices == nil {
		c.choices = []string{}
	}
	c.state = AwaitingChoice
	c.view.ShowChoices(c.choices)
}

func (c *Controller) State() State { return c.state }

// Index is the segment being typed or last revealed.
func (c *Controller) Index() int { return c.index }

func (c *Controller) Choices() []string {
	out := make([]string, len(c.choices))
	copy(out, c.choices)
	return out
}

// Snapshot is a copy of the controller state safe to hand to other
// goroutines.
type Snapshot struct {
	State    State            `json:"state"`
	Index    int              `json:"index"`
	Segments []markup.Segment `json:"segments"`
	Revealed string           `json:"revealed"`
	Choices  []string         `json:"choices"`
	Failed   bool             `json:"failed"`
	Pending  string           `json:"pending,omitempty"`
	EndText  string           `json:"end_text,omitempty"`
}

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:    c.state,
		Index:    c.index,
		Segments: append([]markup.Segment(nil), c.turn.Segments...),
		Choices:  c.Choices(),
		Failed:   c.failed,
		Pending:  c.pending,
		EndText:  c.endText,
	}
	if c.tw != nil {
		s.Revealed = c.tw.Current()
	}
	return s
}
