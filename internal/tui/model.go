// Package tui is the terminal front end: a story menu, the game screen and
// the end screen, built on bubbletea.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MikeSquared-Agency/vellum/internal/game"
	"github.com/MikeSquared-Agency/vellum/internal/markup"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

// GameFactory builds a game whose presentation callbacks go to view.
type GameFactory func(s *story.Story, view playback.View) (*game.Game, error)

type Options struct {
	Catalog      *story.Catalog
	NewGame      GameFactory
	EndTextDelay time.Duration
	Logger       *slog.Logger
}

type screen int

const (
	screenMenu screen = iota
	screenGame
	screenEnd
)

type storiesMsg struct {
	names []string
	err   error
}

type endTickMsg struct{}

const maxWidth = 80

type Model struct {
	ctx    context.Context
	opts   Options
	styles styles
	width  int

	screen  screen
	stories []string
	cursor  int
	err     string

	game   *game.Game
	cancel context.CancelFunc
	bridge *Bridge
	snap   game.Snapshot
	end    *playback.Typewriter
}

// New returns the menu screen. Games started from it run under ctx.
func New(ctx context.Context, opts Options) Model {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return Model{ctx: ctx, opts: opts, styles: defaultStyles()}
}

func (m Model) Init() tea.Cmd {
	return m.loadStories()
}

func (m Model) loadStories() tea.Cmd {
	catalog := m.opts.Catalog
	return func() tea.Msg {
		names, err := catalog.List()
		return storiesMsg{names: names, err: err}
	}
}

func (m Model) endTick() tea.Cmd {
	return tea.Tick(m.opts.EndTextDelay, func(time.Time) tea.Msg { return endTickMsg{} })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case storiesMsg:
		m.stories = msg.names
		if msg.err != nil {
			m.err = msg.err.Error()
		}
		if m.cursor >= len(m.stories) {
			m.cursor = 0
		}
		return m, nil
	case refreshMsg:
		if msg.bridge != m.bridge || m.game == nil {
			return m, nil
		}
		return m.refresh()
	case endTickMsg:
		if m.screen != screenEnd || m.end == nil || m.end.Done() {
			return m, nil
		}
		if _, done := m.end.Next(); !done {
			return m, m.endTick()
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.stop()
			return m, tea.Quit
		}
		switch m.screen {
		case screenMenu:
			return m.menuKey(msg)
		case screenGame:
			return m.gameKey(msg)
		case screenEnd:
			return m.endKey(msg)
		}
	}
	return m, nil
}

func (m Model) refresh() (tea.Model, tea.Cmd) {
	m.snap = m.game.Snapshot()
	cmds := []tea.Cmd{m.bridge.listen()}
	if m.snap.State == playback.Ended && m.screen == screenGame {
		m.screen = screenEnd
		m.end = playback.NewTypewriter(m.snap.EndText)
		if m.opts.EndTextDelay <= 0 {
			m.end.Finish()
		} else {
			cmds = append(cmds, m.endTick())
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) menuKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.stories)-1 {
			m.cursor++
		}
	case "r":
		m.err = ""
		return m, m.loadStories()
	case "enter":
		if len(m.stories) == 0 {
			return m, nil
		}
		return m.start(m.stories[m.cursor])
	}
	return m, nil
}

func (m Model) gameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "enter", " ":
		m.game.Tap()
	case "s":
		m.game.Skip()
	case "r":
		m.game.Retry()
	case "esc":
		m.stop()
		m.screen = screenMenu
		return m, m.loadStories()
	case "1", "2", "3":
		m.game.SelectChoice(int(key[0] - '1'))
	}
	return m, nil
}

func (m Model) endKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", " ":
		m.end.Finish()
	case "r":
		m.stop()
		m.screen = screenMenu
		m.end = nil
		return m, m.loadStories()
	}
	return m, nil
}

// start builds a fresh game for the named story. Story errors, missing
// configuration among them, stay on the menu.
func (m Model) start(name string) (tea.Model, tea.Cmd) {
	st, err := m.opts.Catalog.Find(name)
	if err != nil {
		m.err = err.Error()
		return m, nil
	}
	bridge := NewBridge()
	g, err := m.opts.NewGame(st, bridge)
	if err != nil {
		m.err = err.Error()
		return m, nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	logger := m.opts.Logger
	go func() {
		if err := g.Run(ctx); err != nil {
			logger.Error("game run failed", "game_id", g.ID(), "error", err)
		}
	}()

	m.err = ""
	m.game = g
	m.cancel = cancel
	m.bridge = bridge
	m.snap = g.Snapshot()
	m.screen = screenGame
	return m, bridge.listen()
}

// stop ends the current game, if any, and waits for its journal to flush.
func (m *Model) stop() {
	if m.game == nil {
		return
	}
	m.cancel()
	m.game.Stop()
	m.bridge.Close()
	m.game, m.cancel, m.bridge = nil, nil, nil
}

func (m Model) boxWidth() int {
	if m.width > 0 && m.width-4 < maxWidth {
		return m.width - 4
	}
	return maxWidth
}

func (m Model) View() string {
	switch m.screen {
	case screenGame:
		return m.gameView()
	case screenEnd:
		return m.endView()
	}
	return m.menuView()
}

func (m Model) menuView() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Vellum") + "\n\n")
	if len(m.stories) == 0 {
		b.WriteString("No stories found.\n")
	} else {
		b.WriteString("Choose a story:\n\n")
	}
	for i, name := range m.stories {
		if i == m.cursor {
			b.WriteString(m.styles.selected.Render("> "+name) + "\n")
		} else {
			b.WriteString("  " + name + "\n")
		}
	}
	if m.err != "" {
		b.WriteString("\n" + m.styles.err.Render(m.err) + "\n")
	}
	b.WriteString("\n" + m.styles.help.Render("↑/↓ select • enter start • r reload • q quit"))
	return b.String()
}

func (m Model) gameView() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.snap.Title) + "\n")
	if attrs := attributeLine(m.snap.Attributes); attrs != "" {
		b.WriteString(m.styles.panel.Render(attrs) + "\n")
	}

	b.WriteString(m.styles.box.Width(m.boxWidth()).Render(currentText(m.snap.Snapshot)) + "\n")

	if m.bridge != nil {
		for _, n := range m.bridge.Notes() {
			b.WriteString(m.styles.note.Render(n) + "\n")
		}
	}

	help := "enter continue • s skip • esc menu • q quit"
	switch m.snap.State {
	case playback.AwaitingBackendResponse:
		b.WriteString("\n…\n")
		help = "esc menu • q quit"
	case playback.AwaitingChoice:
		b.WriteString("\n")
		for i, c := range m.snap.Choices {
			b.WriteString(m.styles.choice.Render(fmt.Sprintf("%d. %s", i+1, c)) + "\n")
		}
		help = "1-3 choose • esc menu • q quit"
		if m.snap.Failed {
			failure := "request failed"
			if m.bridge != nil && m.bridge.Failure() != "" {
				failure = "request failed: " + m.bridge.Failure()
			}
			b.WriteString(m.styles.err.Render(failure) + "\n")
			help = "r retry • " + help
		}
	}
	b.WriteString("\n" + m.styles.help.Render(help))
	return b.String()
}

func (m Model) endView() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render(m.snap.Title) + "\n")
	if attrs := attributeLine(m.snap.Attributes); attrs != "" {
		b.WriteString(m.styles.panel.Render(attrs) + "\n")
	}
	text := ""
	if m.end != nil {
		text = m.end.Current()
	}
	b.WriteString(m.styles.box.Width(m.boxWidth()).Render(text) + "\n")
	if m.end == nil || m.end.Done() {
		b.WriteString("\n" + m.styles.help.Render("r restart • q quit"))
	} else {
		b.WriteString("\n" + m.styles.help.Render("enter show all • q quit"))
	}
	return b.String()
}

// currentText is what the story box shows: the segment being revealed, or
// once a turn has played out, its last visible segment.
func currentText(s playback.Snapshot) string {
	switch s.State {
	case playback.Typing, playback.SegmentRevealed:
		return s.Revealed
	}
	for i := len(s.Segments) - 1; i >= 0; i-- {
		if s.Segments[i].Kind != markup.KindSound && s.Segments[i].Display() != "" {
			return s.Segments[i].Display()
		}
	}
	return ""
}

func attributeLine(attrs map[string]float64) string {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + formatValue(attrs[name])
	}
	return strings.Join(parts, "  ")
}
