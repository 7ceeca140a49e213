// Package worker runs long jobs (extraction, cropping) on their own goroutine
// and reports back through events instead of shared state.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/andresmejia3/lotannot/internal/types"
)

// eventBuffer is the channel capacity. One slot is always kept free for the
// final event.
const eventBuffer = 32

type Kind int

const (
	KindProgress Kind = iota
	KindFinished
	KindCanceled
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindProgress:
		return "progress"
	case KindFinished:
		return "finished"
	case KindCanceled:
		return "canceled"
	case KindFailed:
		return "failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Terminal reports whether k ends a run.
func (k Kind) Terminal() bool { return k != KindProgress }

type Event struct {
	RunID   uuid.UUID
	Name    string
	Kind    Kind
	Percent int
	Err     error // set for KindFailed
}

// Job is the unit of background work. It must check ctx between frames and
// return types.OutcomeCanceled once ctx is done.
type Job func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error)

type Worker struct {
	RunID uuid.UUID
	Name  string

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	last     int
	finished bool
	final    Event
}

// Start launches job. The caller reads Events until it is closed, or just
// calls Wait.
func Start(ctx context.Context, name string, job Job) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		RunID:  uuid.New(),
		Name:   name,
		events: make(chan Event, eventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
		last:   -1,
	}
	go w.run(ctx, job)
	return w
}

func (w *Worker) run(ctx context.Context, job Job) {
	defer close(w.done)
	defer w.cancel()

	outcome, err := w.call(ctx, job)

	final := Event{RunID: w.RunID, Name: w.Name}
	switch {
	case err != nil:
		final.Kind = KindFailed
		final.Err = err
	case outcome == types.OutcomeCanceled:
		final.Kind = KindCanceled
	default:
		final.Kind = KindFinished
		final.Percent = 100
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if final.Kind != KindFinished {
		final.Percent = max(0, w.last)
	}
	w.final = final
	w.finished = true
	w.events <- final
	close(w.events)
}

func (w *Worker) call(ctx context.Context, job Job) (outcome types.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s worker panicked: %v", w.Name, r)
		}
	}()
	return job(ctx, w.progress)
}

// progress forwards increases only, and drops updates rather than block
// the job when nobody is reading.
func (w *Worker) progress(percent int) {
	percent = max(0, min(100, percent))
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished || percent <= w.last {
		return
	}
	if len(w.events) >= cap(w.events)-1 {
		return
	}
	w.last = percent
	w.events <- Event{RunID: w.RunID, Name: w.Name, Kind: KindProgress, Percent: percent}
}

// Events is closed after the final event.
func (w *Worker) Events() <-chan Event { return w.events }

// Cancel asks the job to stop at the next frame boundary.
func (w *Worker) Cancel() { w.cancel() }

// Done is closed once the job has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the job returns and reports its final event.
func (w *Worker) Wait() Event {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.final
}
