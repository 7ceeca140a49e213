package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andresmejia3/lotannot/internal/types"
)

func collect(w *Worker) []Event {
	var out []Event
	for ev := range w.Events() {
		out = append(out, ev)
	}
	return out
}

func TestWorkerFinished(t *testing.T) {
	w := Start(context.Background(), "crop", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		for i := 1; i <= 10; i++ {
			progress(i * 10)
			progress(i * 10) // duplicates are coalesced
		}
		return types.OutcomeFinished, nil
	})

	events := collect(w)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if last.Kind != KindFinished || last.Percent != 100 {
		t.Errorf("final event = %+v", last)
	}

	prev := -1
	for _, ev := range events[:len(events)-1] {
		if ev.Kind != KindProgress {
			t.Fatalf("unexpected %s before the final event", ev.Kind)
		}
		if ev.Percent <= prev {
			t.Errorf("progress not increasing: %d after %d", ev.Percent, prev)
		}
		if ev.RunID != w.RunID || ev.Name != "crop" {
			t.Errorf("event not tagged with the run: %+v", ev)
		}
		prev = ev.Percent
	}

	if got := w.Wait(); got.Kind != KindFinished {
		t.Errorf("Wait() = %s, want finished", got.Kind)
	}
}

func TestWorkerCanceled(t *testing.T) {
	started := make(chan struct{})
	w := Start(context.Background(), "extract", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		progress(5)
		close(started)
		<-ctx.Done()
		return types.OutcomeCanceled, nil
	})

	<-started
	w.Cancel()

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after Cancel")
	}
	final := w.Wait()
	if final.Kind != KindCanceled {
		t.Errorf("expected canceled, got %s", final.Kind)
	}
	if final.Percent != 5 {
		t.Errorf("canceled event should carry last progress, got %d", final.Percent)
	}
	if final.Err != nil {
		t.Errorf("cancellation is not a failure: %v", final.Err)
	}
}

func TestWorkerFailed(t *testing.T) {
	boom := errors.New("corrupt frame")
	w := Start(context.Background(), "crop", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		return types.OutcomeFinished, boom
	})
	final := w.Wait()
	if final.Kind != KindFailed || !errors.Is(final.Err, boom) {
		t.Errorf("expected failed with %v, got %+v", boom, final)
	}
}

func TestWorkerPanic(t *testing.T) {
	w := Start(context.Background(), "crop", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		panic("index out of range")
	})
	final := w.Wait()
	if final.Kind != KindFailed || final.Err == nil {
		t.Errorf("panic should surface as failure, got %+v", final)
	}
}

func TestWorkerDoesNotBlockWithoutReader(t *testing.T) {
	// Nobody reads Events: progress must be dropped, not block the job.
	w := Start(context.Background(), "crop", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		for i := 0; i <= 100; i++ {
			progress(i)
		}
		return types.OutcomeFinished, nil
	})

	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job blocked on an unread event channel")
	}

	events := collect(w)
	if len(events) > eventBuffer {
		t.Errorf("buffered %d events, capacity is %d", len(events), eventBuffer)
	}
	if events[len(events)-1].Kind != KindFinished {
		t.Errorf("final event missing, last = %+v", events[len(events)-1])
	}
}

func TestParentContextCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := Start(ctx, "crop", func(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
		<-ctx.Done()
		return types.OutcomeCanceled, nil
	})
	cancel()
	if final := w.Wait(); final.Kind != KindCanceled {
		t.Errorf("expected canceled, got %s", final.Kind)
	}
}

func TestKindTerminal(t *testing.T) {
	if KindProgress.Terminal() {
		t.Error("progress is not terminal")
	}
	for _, k := range []Kind{KindFinished, KindCanceled, KindFailed} {
		if !k.Terminal() {
			t.Errorf("%s should be terminal", k)
		}
	}
}
