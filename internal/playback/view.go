package playback

import "github.com/MikeSquared-Agency/vellum/internal/markup"

// View is the presentation collaborator. Every method is called from the
// loop goroutine, in order, and must not block on loop input.
type View interface {
	RevealChunk(index int, partial string)
	SegmentRevealComplete(index int)
	ShowChoices(choices []string)
	PlayCue(cue string)
	StoryEnded(text string)

	RequestStarted()
	RequestFailed(err error)
	AttributeApplied(change markup.AttributeChange, value float64, err error)
}

// BaseView implements View with no-ops. Embed it to handle only some
// callbacks.
type BaseView struct{}

func (BaseView) RevealChunk(int, string)                                 {}
func (BaseView) SegmentRevealComplete(int)                               {}
func (BaseView) ShowChoices([]string)                                    {}
func (BaseView) PlayCue(string)                                          {}
func (BaseView) StoryEnded(string)                                       {}
func (BaseView) RequestStarted()                                         {}
func (BaseView) RequestFailed(error)                                     {}
func (BaseView) AttributeApplied(markup.AttributeChange, float64, error) {}

// SnapshotListener is an optional View extension. SnapshotPublished is called
// on the loop goroutine after each processed event, once Loop.Snapshot
// already returns s. Readers woken here never see an older state.
type SnapshotListener interface {
	SnapshotPublished(s Snapshot)
}

// Views fans callbacks out to several views in order.
type Views []View

func (vs Views) RevealChunk(index int, partial string) {
	for _, v := range vs {
		v.RevealChunk(index, partial)
	}
}

func (vs Views) SegmentRevealComplete(index int) {
	for _, v := range vs {
		v.SegmentRevealComplete(index)
	}
}

func (vs Views) ShowChoices(choices []string) {
	for _, v := range vs {
		v.ShowChoices(choices)
	}
}

func (vs Views) PlayCue(cue string) {
	for _, v := range vs {
		v.PlayCue(cue)
	}
}

func (vs Views) StoryEnded(text string) {
	for _, v := range vs {
		v.StoryEnded(text)
	}
}

func (vs Views) RequestStarted() {
	for _, v := range vs {
		v.RequestStarted()
	}
}

func (vs Views) RequestFailed(err error) {
	for _, v := range vs {
		v.RequestFailed(err)
	}
}

func (vs Views) AttributeApplied(change markup.AttributeChange, value float64, err error) {
	for _, v := range vs {
		v.AttributeApplied(change, value, err)
	}
}

// SnapshotPublished forwards to the members that listen for snapshots.
func (vs Views) SnapshotPublished(s Snapshot) {
	for _, v := range vs {
		if l, ok := v.(SnapshotListener); ok {
			l.SnapshotPublished(s)
		}
	}
}
