package game

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const recordTimeout = 10 * time.Second

// recorder runs journal writes and event publishes in submission order on
// one goroutine so neither the loop nor a backend request waits on I/O.
type recorder struct {
	jobs   chan job
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

func newRecorder(logger *slog.Logger) *recorder {
	r := &recorder{
		jobs:   make(chan job, 256),
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.work()
	return r
}

func (r *recorder) work() {
	defer close(r.done)
	for j := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := j.run(ctx); err != nil {
			r.logger.Error("record failed", "job", j.name, "error", err)
		}
		cancel()
	}
}

// enqueue drops the job once the recorder is closed.
func (r *recorder) enqueue(name string, run func(ctx context.Context) error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Debug("recorder closed, dropping job", "job", name)
		return
	}
	r.jobs <- job{name: name, run: run}
}

// close stops accepting jobs and waits for queued ones to finish.
func (r *recorder) close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.jobs)
		r.mu.Unlock()
	})
	<-r.done
}
