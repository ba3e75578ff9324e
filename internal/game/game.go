// Package game composes one playthrough: a fresh attribute store, chat
// session and playback loop for a story, plus journaling and event
// publishing around them. Restarting means building a new Game.
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/vellum/internal/attributes"
	"github.com/MikeSquared-Agency/vellum/internal/bus"
	"github.com/MikeSquared-Agency/vellum/internal/chat"
	"github.com/MikeSquared-Agency/vellum/internal/markup"
	"github.com/MikeSquared-Agency/vellum/internal/metrics"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/store"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

// Deps are the collaborators shared by every game. Journal and Bus are
// optional.
type Deps struct {
	Backend        chat.Backend
	Journal        store.Journal
	Bus            bus.Publisher
	Tokens         chat.TokenCounter
	TextDelay      time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type Game struct {
	id      uuid.UUID
	story   *story.Story
	attrs   *attributes.Store
	session *chat.Session
	loop    *playback.Loop
	deps    Deps
	logger  *slog.Logger
	rec     *recorder

	turns   atomic.Int32
	started time.Time

	mu        sync.RWMutex
	attrSnap  map[string]float64
	running   bool
	cancel    context.CancelFunc
	stopped   chan struct{}
	runCalled atomic.Bool
}

// New seeds a playthrough of s. view receives every presentation callback;
// a blank [end] text is replaced by the story's ending before it reaches
// view.
func New(s *story.Story, view playback.View, deps Deps) (*Game, error) {
	if deps.Backend == nil {
		return nil, errors.New("game: backend is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	prompt, err := s.SystemPrompt()
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}

	g := &Game{
		id:      uuid.New(),
		story:   s,
		attrs:   s.NewAttributes(),
		deps:    deps,
		stopped: make(chan struct{}),
	}
	g.logger = deps.Logger.With("game_id", g.id.String(), "story", s.Name)
	g.attrSnap = g.attrs.Snapshot()

	opts := chat.Options{Timeout: deps.RequestTimeout}
	if deps.Tokens != nil {
		opts.Tokens = func(model string, messages []chat.Message) int {
			n := deps.Tokens(model, messages)
			metrics.PromptTokens.Observe(float64(n))
			return n
		}
	}
	g.session, err = chat.NewSession(deps.Backend, prompt, opts, g.logger)
	if err != nil {
		return nil, fmt.Errorf("start chat session: %w", err)
	}

	views := playback.Views{&observer{g: g}}
	if view != nil {
		views = append(views, endingView{View: view, story: s})
	}
	g.loop = playback.NewLoop(views, g.attrs, g.submit, deps.TextDelay, g.logger)
	return g, nil
}

func (g *Game) ID() uuid.UUID          { return g.id }
func (g *Game) Story() *story.Story    { return g.story }
func (g *Game) Session() *chat.Session { return g.session }

// Run starts the playthrough with the story's opening prompt and processes
// events until ctx is cancelled or Stop is called. Queued journal writes are
// flushed before it returns.
func (g *Game) Run(ctx context.Context) error {
	if !g.runCalled.CompareAndSwap(false, true) {
		return errors.New("game: already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.running = true
	g.mu.Unlock()
	defer close(g.stopped)
	defer cancel()

	g.rec = newRecorder(g.logger)
	defer g.rec.close()

	metrics.GamesActive.Inc()
	defer metrics.GamesActive.Dec()

	g.started = time.Now().UTC()
	g.logger.Info("game started", "title", g.story.Title, "model", g.deps.Backend.Model())
	g.record("start playthrough", func(ctx context.Context) error {
		if g.deps.Journal == nil {
			return nil
		}
		return g.deps.Journal.StartPlaythrough(ctx, store.Playthrough{
			ID:        g.id,
			Story:     g.story.Name,
			Title:     g.story.Title,
			Model:     g.deps.Backend.Model(),
			StartedAt: g.started,
		})
	})
	g.publish(bus.GameStarted{
		GameID:    g.id.String(),
		Story:     g.story.Name,
		Model:     g.deps.Backend.Model(),
		StartedAt: g.started,
	})

	g.loop.Open(g.story.Opening)
	g.loop.Run(ctx)

	g.mu.Lock()
	g.running = false
	g.mu.Unlock()
	g.logger.Info("game stopped", "turns", g.turns.Load())
	return nil
}

// Stop cancels Run and waits for it to return. It is a no-op if Run was
// never called.
func (g *Game) Stop() {
	g.mu.RLock()
	cancel := g.cancel
	g.mu.RUnlock()
	if cancel == nil {
		return
	}
	cancel()
	<-g.stopped
}

// submit opens an exchange on the loop goroutine. The reply is parsed once
// on the request goroutine; history, turn count and journal only change in
// accept, back on the loop.
func (g *Game) submit(prompt string) func(ctx context.Context) (playback.Reply, error) {
	msgs := g.session.Begin(prompt)
	return func(ctx context.Context) (playback.Reply, error) {
		raw, err := g.session.Request(ctx, msgs)
		if err != nil {
			var reqErr *chat.RequestError
			timeout := errors.As(err, &reqErr) && reqErr.Timeout()
			g.publish(bus.RequestFailed{
				GameID:  g.id.String(),
				Prompt:  prompt,
				Error:   err.Error(),
				Timeout: timeout,
			})
			return playback.Reply{}, err
		}

		turn := markup.Parse(raw)
		if turn.Dropped > 0 {
			g.logger.Debug("reply lines dropped", "dropped", turn.Dropped)
		}
		return playback.Reply{
			Turn:   turn,
			Accept: func() { g.accept(prompt, raw, turn) },
		}, nil
	}
}

func (g *Game) accept(prompt, raw string, turn markup.ParsedTurn) {
	if err := g.session.Commit(raw); err != nil {
		g.logger.Warn("reply not committed", "error", err)
		return
	}
	seq := int(g.turns.Add(1))
	metrics.TurnsTotal.Inc()
	if turn.Dropped > 0 {
		metrics.DroppedLines.Add(float64(turn.Dropped))
	}

	now := time.Now().UTC()
	g.record("record turn", func(ctx context.Context) error {
		if g.deps.Journal == nil {
			return nil
		}
		return g.deps.Journal.RecordTurn(ctx, store.Turn{
			PlaythroughID: g.id,
			Seq:           seq,
			Prompt:        prompt,
			Reply:         raw,
			CreatedAt:     now,
		})
	})
	g.publish(bus.TurnCompleted{
		GameID:   g.id.String(),
		Turn:     seq,
		Prompt:   prompt,
		Reply:    raw,
		Segments: len(turn.Segments),
		Choices:  turn.Choices,
		Ended:    turn.Ended(),
		Dropped:  turn.Dropped,
	})
}

func (g *Game) record(name string, run func(ctx context.Context) error) {
	if g.rec == nil {
		return
	}
	g.rec.enqueue(name, run)
}

func (g *Game) publish(ev bus.Event) {
	if g.deps.Bus == nil {
		return
	}
	g.record("publish "+ev.Subject(), func(context.Context) error {
		return g.deps.Bus.PublishEvent(ev)
	})
}

func (g *Game) Advance()               { g.loop.Advance() }
func (g *Game) Skip()                  { g.loop.Skip() }
func (g *Game) Tap()                   { g.loop.Tap() }
func (g *Game) Retry()                 { g.loop.Retry() }
func (g *Game) SelectChoice(index int) { g.loop.SelectChoice(index) }

// Snapshot describes the game for readers outside the loop.
type Snapshot struct {
	ID      string `json:"id"`
	Story   string `json:"story"`
	Title   string `json:"title"`
	Running bool   `json:"running"`
	playback.Snapshot
	Attributes map[string]float64 `json:"attributes"`
	Turns      int                `json:"turns"`
}

func (g *Game) Snapshot() Snapshot {
	pb := g.loop.Snapshot()
	if pb.State == playback.Ended {
		pb.EndText = g.story.EndingText(pb.EndText)
	}

	g.mu.RLock()
	attrs := make(map[string]float64, len(g.attrSnap))
	for k, v := range g.attrSnap {
		attrs[k] = v
	}
	running := g.running
	g.mu.RUnlock()

	return Snapshot{
		ID:         g.id.String(),
		Story:      g.story.Name,
		Title:      g.story.Title,
		Running:    running,
		Snapshot:   pb,
		Attributes: attrs,
		Turns:      int(g.turns.Load()),
	}
}

// endingView substitutes the story's ending for a blank [end] text.
type endingView struct {
	playback.View
	story *story.Story
}

func (e endingView) StoryEnded(text string) {
	e.View.StoryEnded(e.story.EndingText(text))
}

func (e endingView) SnapshotPublished(s playback.Snapshot) {
	if l, ok := e.View.(playback.SnapshotListener); ok {
		l.SnapshotPublished(s)
	}
}
