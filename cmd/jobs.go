package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/lotannot/internal/utils"
	"github.com/andresmejia3/lotannot/internal/worker"
	"github.com/schollz/progressbar/v3"
)

// errCanceled is returned to cobra when the user interrupts a job.
var errCanceled = errors.New("canceled")

// runJob starts job in the background and renders its progress on stderr
// until the final event arrives.
func runJob(ctx context.Context, name, description string, job worker.Job) worker.Event {
	bar := progressbar.NewOptions64(100,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	w := worker.Start(ctx, name, job)
	var final worker.Event
	for ev := range w.Events() {
		if ev.Kind == worker.KindProgress {
			bar.Set(ev.Percent)
			continue
		}
		final = ev
	}

	if final.Kind == worker.KindFinished {
		bar.Finish()
	}
	fmt.Fprintln(os.Stderr)
	return final
}

// jobError maps a final event onto the command's error.
func jobError(final worker.Event, failure string) error {
	switch final.Kind {
	case worker.KindFinished:
		return nil
	case worker.KindCanceled:
		fmt.Fprintf(os.Stderr, "🛑 %s canceled at %d%%\n", final.Name, final.Percent)
		return errCanceled
	default:
		utils.ShowError(failure, final.Err, nil)
		return final.Err
	}
}
