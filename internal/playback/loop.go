package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/vellum/internal/markup"
)

// SubmitFunc starts an exchange for prompt. It is called on the loop
// goroutine; the func it returns performs the request on its own goroutine
// and may block for the whole request timeout.
type SubmitFunc func(prompt string) func(ctx context.Context) (Reply, error)

// Reply is a parsed backend answer. Accept, when set, runs on the loop
// goroutine right before the turn is played. A reply that arrives after the
// controller stopped waiting is discarded without Accept.
type Reply struct {
	Turn   markup.ParsedTurn
	Accept func()
}

// ErrStopped is returned by Wait when the loop is not running.
var ErrStopped = errors.New("playback loop stopped")

// Loop is the presentation thread. Inputs, reveal ticks and backend results
// are all applied to the Controller from the Run goroutine.
type Loop struct {
	ctrl     *Controller
	submit   SubmitFunc
	delay    time.Duration
	logger   *slog.Logger
	listener SnapshotListener

	// seq identifies the request the controller is waiting for.
	seq uint64

	events chan func()
	done   chan struct{}
	ctx    context.Context

	mu   sync.RWMutex
	snap Snapshot
}

// NewLoop builds a loop and its Controller. A delay of zero or less reveals
// each segment in one step.
func NewLoop(view View, attrs Applier, submit SubmitFunc, delay time.Duration, logger *slog.Logger) *Loop {
	l := &Loop{
		submit: submit,
		delay:  delay,
		logger: logger,
		events: make(chan func(), 64),
		done:   make(chan struct{}),
		ctx:    context.Background(),
	}
	l.ctrl = NewController(view, attrs, DispatchFunc(l.dispatch))
	l.snap = l.ctrl.Snapshot()
	if sl, ok := view.(SnapshotListener); ok {
		l.listener = sl
	}
	return l
}

// Run processes events until ctx is cancelled. It must be called once.
func (l *Loop) Run(ctx context.Context) {
	l.ctx = ctx
	defer close(l.done)

	var tick <-chan time.Time
	if l.delay > 0 {
		t := time.NewTicker(l.delay)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("playback loop stopped", "state", l.ctrl.State())
			return
		case f := <-l.events:
			f()
		case <-tick:
			if l.ctrl.State() != Typing {
				continue
			}
			l.ctrl.Tick()
		}
		if l.delay <= 0 && l.ctrl.State() == Typing {
			l.ctrl.Skip()
		}
		l.publish()
	}
}

func (l *Loop) publish() {
	s := l.ctrl.Snapshot()
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
	if l.listener != nil {
		l.listener.SnapshotPublished(s)
	}
}

// post queues f for the loop goroutine. It drops f once the loop has stopped.
func (l *Loop) post(f func()) {
	select {
	case l.events <- f:
	case <-l.done:
	}
}

func (l *Loop) dispatch(prompt string) {
	l.seq++
	seq := l.seq
	send := l.submit(prompt)
	ctx := l.ctx
	go func() {
		reply, err := send(ctx)
		l.post(func() { l.resolve(seq, reply, err) })
	}()
}

func (l *Loop) resolve(seq uint64, reply Reply, err error) {
	if seq != l.seq || l.ctrl.State() != AwaitingBackendResponse {
		l.logger.Debug("stale reply discarded", "state", l.ctrl.State())
		return
	}
	if err == nil && reply.Accept != nil {
		reply.Accept()
	}
	l.ctrl.Resolve(reply.Turn, err)
}

func (l *Loop) Open(prompt string)               { l.post(func() { l.ctrl.Open(prompt) }) }
func (l *Loop) BeginTurn(turn markup.ParsedTurn) { l.post(func() { l.ctrl.BeginTurn(turn) }) }
func (l *Loop) Advance()                         { l.post(l.ctrl.Advance) }
func (l *Loop) Skip()                            { l.post(l.ctrl.Skip) }
func (l *Loop) Tap()                             { l.post(l.ctrl.Tap) }
func (l *Loop) Retry()                           { l.post(l.ctrl.Retry) }
func (l *Loop) SelectChoice(index int)           { l.post(func() { l.ctrl.SelectChoice(index) }) }

// Snapshot returns the state as of the last processed event.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

// Wait blocks until f has run on the loop goroutine.
func (l *Loop) Wait(ctx context.Context, f func(*Controller)) error {
	ran := make(chan struct{})
	select {
	case l.events <- func() { f(l.ctrl); close(ran) }:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }
