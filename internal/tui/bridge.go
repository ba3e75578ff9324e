package tui

import (
	"fmt"
	"strconv"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MikeSquared-Agency/vellum/internal/markup"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
)

const maxNotes = 5

// refreshMsg tells the model to re-read the game snapshot.
type refreshMsg struct{ bridge *Bridge }

// Bridge is the playback.View of the terminal program. It never blocks the
// playback loop: callbacks only record what the game snapshot does not
// carry. The program is woken once the loop has published the snapshot
// those callbacks led to, so a refresh never reads an older state.
type Bridge struct {
	playback.BaseView

	mu      sync.Mutex
	notes   []string
	failure string

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewBridge() *Bridge {
	return &Bridge{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (b *Bridge) notify() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) note(s string) {
	b.mu.Lock()
	b.notes = append(b.notes, s)
	if len(b.notes) > maxNotes {
		b.notes = b.notes[len(b.notes)-maxNotes:]
	}
	b.mu.Unlock()
}

// Notes returns the most recent cue and attribute lines, oldest first.
func (b *Bridge) Notes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.notes...)
}

// Failure is the error of the last failed request, empty once a new
// request starts.
func (b *Bridge) Failure() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

// Close ends the listen command of this bridge.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// listen waits for the next wake-up. It yields nil once the bridge closes.
func (b *Bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.wake:
			return refreshMsg{bridge: b}
		case <-b.done:
			return nil
		}
	}
}

// SnapshotPublished leaves a coalesced wake-up for listen.
func (b *Bridge) SnapshotPublished(playback.Snapshot) { b.notify() }

func (b *Bridge) PlayCue(cue string) {
	b.note("♪ " + cue)
}

func (b *Bridge) RequestStarted() {
	b.mu.Lock()
	b.failure = ""
	b.mu.Unlock()
}

func (b *Bridge) RequestFailed(err error) {
	b.mu.Lock()
	b.failure = err.Error()
	b.mu.Unlock()
}

func (b *Bridge) AttributeApplied(change markup.AttributeChange, value float64, err error) {
	if err != nil {
		b.note(fmt.Sprintf("%s %+d ignored: %v", change.Name, change.Delta, err))
		return
	}
	b.note(fmt.Sprintf("%s %+d → %s", change.Name, change.Delta, formatValue(value)))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
