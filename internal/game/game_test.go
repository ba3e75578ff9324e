package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/vellum/internal/bus"
	"github.com/MikeSquared-Agency/vellum/internal/chat"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/store"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testStory = `
title: The Lighthouse
genre: gothic horror
background: A keeper has gone silent.
characters: [{name: Mara}]
attributes: {SAN: 100}
opening: Start at the pier.
ending: The lamp goes dark.
`

// scriptedBackend answers by the last user turn.
type scriptedBackend struct {
	mu      sync.Mutex
	replies map[string][]string
	prompts []string
}

func (b *scriptedBackend) Model() string { return "scripted" }

func (b *scriptedBackend) Complete(ctx context.Context, messages []chat.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	b.prompts = append(b.prompts, prompt)
	queue := b.replies[prompt]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := queue[0]
	b.replies[prompt] = queue[1:]
	if reply == "!fail" {
		return "", errors.New("backend down")
	}
	return reply, nil
}

type memJournal struct {
	mu     sync.Mutex
	starts []store.Playthrough
	turns  []store.Turn
	attrs  []store.AttributeChange
	ends   []store.Ending
}

func (j *memJournal) StartPlaythrough(_ context.Context, p store.Playthrough) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.starts = append(j.starts, p)
	return nil
}

func (j *memJournal) RecordTurn(_ context.Context, t store.Turn) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.turns = append(j.turns, t)
	return nil
}

func (j *memJournal) RecordAttribute(_ context.Context, a store.AttributeChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attrs = append(j.attrs, a)
	return nil
}

func (j *memJournal) FinishPlaythrough(_ context.Context, e store.Ending) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ends = append(j.ends, e)
	return nil
}

func (j *memJournal) Close() error { return nil }

type memBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *memBus) PublishEvent(ev bus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, ev.Subject())
	return nil
}

type endCapture struct {
	playback.BaseView
	mu   sync.Mutex
	text []string
}

func (e *endCapture) StoryEnded(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = append(e.text, text)
}

func loadStory(t *testing.T) *story.Story {
	t.Helper()
	s, err := story.Parse([]byte(testStory))
	require.NoError(t, err)
	s.Name = "lighthouse"
	return s
}

func waitFor(t *testing.T, g *Game, cond func(Snapshot) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(g.Snapshot()) }, 2*time.Second, 5*time.Millisecond,
		"last snapshot: %+v", g.Snapshot())
}

func TestGame_FullPlaythrough(t *testing.T) {
	backend := &scriptedBackend{replies: map[string][]string{
		"Start at the pier.": {"[text]Waves.\n[attribute=SAN.-10]cold\n[attribute=HP.-1]slip\n[choice]Climb|Wait|Swim"},
		"Wait":               {"[text]Night falls.\n[end]"},
	}}
	journal := &memJournal{}
	events := &memBus{}
	view := &endCapture{}

	g, err := New(loadStory(t), view, Deps{
		Backend: backend,
		Journal: journal,
		Bus:     events,
		Logger:  discardLogger(),
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Run(context.Background())
	}()

	waitFor(t, g, func(s Snapshot) bool { return s.State == playback.SegmentRevealed })
	g.Advance()
	waitFor(t, g, func(s Snapshot) bool { return s.Index == 1 && s.State == playback.SegmentRevealed })
	g.Advance()
	waitFor(t, g, func(s Snapshot) bool { return s.Index == 2 && s.State == playback.SegmentRevealed })
	g.Tap()
	waitFor(t, g, func(s Snapshot) bool { return s.State == playback.AwaitingChoice })

	snap := g.Snapshot()
	assert.Equal(t, map[string]float64{"SAN": 90}, snap.Attributes)
	assert.Equal(t, []string{"Climb", "Wait", "Swim"}, snap.Choices)
	assert.Equal(t, 1, snap.Turns)

	g.SelectChoice(1)
	waitFor(t, g, func(s Snapshot) bool { return s.Turns == 2 && s.State == playback.SegmentRevealed })
	g.Advance()
	waitFor(t, g, func(s Snapshot) bool { return s.State == playback.Ended })

	assert.Equal(t, "The lamp goes dark.", g.Snapshot().EndText)
	g.Stop()
	<-done

	view.mu.Lock()
	assert.Equal(t, []string{"The lamp goes dark."}, view.text)
	view.mu.Unlock()

	assert.Equal(t, []string{"Start at the pier.", "Wait"}, backend.prompts)
	assert.Len(t, g.Session().History(), 5)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	require.Len(t, journal.starts, 1)
	assert.Equal(t, "lighthouse", journal.starts[0].Story)
	require.Len(t, journal.turns, 2)
	assert.Equal(t, 1, journal.turns[0].Seq)
	assert.Equal(t, "Wait", journal.turns[1].Prompt)
	require.Len(t, journal.attrs, 2)
	assert.True(t, journal.attrs[0].Applied)
	assert.False(t, journal.attrs[1].Applied)
	require.Len(t, journal.ends, 1)
	assert.Equal(t, "The lamp goes dark.", journal.ends[0].EndText)
	assert.Equal(t, map[string]float64{"SAN": 90}, journal.ends[0].Attributes)

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Equal(t, []string{
		bus.SubjectGameStarted,
		bus.SubjectTurnCompleted,
		bus.SubjectAttributeApplied,
		bus.SubjectAttributeApplied,
		bus.SubjectTurnCompleted,
		bus.SubjectGameEnded,
	}, events.subjects)
}

func TestGame_FailedOpeningCanRetry(t *testing.T) {
	backend := &scriptedBackend{replies: map[string][]string{
		"Start at the pier.": {"!fail", "[text]Waves.\n[choice]A|B|C"},
	}}
	events := &memBus{}

	g, err := New(loadStory(t), nil, Deps{Backend: backend, Bus: events, Logger: discardLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)
	defer g.Stop()

	waitFor(t, g, func(s Snapshot) bool { return s.Failed })
	assert.Equal(t, playback.AwaitingChoice, g.Snapshot().State)
	assert.Equal(t, 0, g.Snapshot().Turns)
	assert.True(t, g.Session().Pending())

	g.Retry()
	waitFor(t, g, func(s Snapshot) bool { return s.State == playback.SegmentRevealed })
	assert.Equal(t, 1, g.Snapshot().Turns)
	assert.Len(t, g.Session().History(), 3, "retry must not duplicate the user turn")
}

func TestGame_RunTwice(t *testing.T) {
	backend := &scriptedBackend{replies: map[string][]string{}}
	g, err := New(loadStory(t), nil, Deps{Backend: backend, Logger: discardLogger()})
	require.NoError(t, err)

	go g.Run(context.Background())
	require.Eventually(t, func() bool { return g.Snapshot().Running }, time.Second, 5*time.Millisecond)

	assert.Error(t, g.Run(context.Background()))
	g.Stop()
	assert.False(t, g.Snapshot().Running)
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(loadStory(t), nil, Deps{})
	assert.Error(t, err)
}

func TestNew_FreshStatePerGame(t *testing.T) {
	backend := &scriptedBackend{replies: map[string][]string{}}
	s := loadStory(t)

	a, err := New(s, nil, Deps{Backend: backend, Logger: discardLogger()})
	require.NoError(t, err)
	b, err := New(s, nil, Deps{Backend: backend, Logger: discardLogger()})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotSame(t, a.attrs, b.attrs)
	assert.NotSame(t, a.Session(), b.Session())
	assert.Equal(t, playback.Idle, a.Snapshot().State)
}
