// Package extract decodes a video into fixed-interval raw frames and writes
// the scene and conditions skeletons that labeling starts from.
package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/timeline"
	"github.com/andresmejia3/lotannot/internal/types"
	"github.com/andresmejia3/lotannot/internal/utils"
)

const megabyte = 1024 * 1024

const (
	SceneFile      = "scene.json"
	ConditionsFile = "conditions.json"
	RawDir         = "raw"
)

var ErrNoFrames = errors.New("decoder produced no frames")

// Options control sampling and encoding.
type Options struct {
	Interval int // seconds between frames
	Quality  int // JPEG quality 1..100
}

func DefaultOptions() Options {
	return Options{Interval: 60, Quality: 95}
}

func (o Options) Validate() error {
	if o.Interval < 1 {
		return fmt.Errorf("interval %d must be >= 1", o.Interval)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality %d must be in 1..100", o.Quality)
	}
	return nil
}

// ProcessError is a decoder failure with whatever ffmpeg wrote to stderr.
type ProcessError struct {
	Err    error
	Stderr string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg: %v", e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v: %s", e.Err, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// WriteFrames splits an MJPEG stream into outDir/00000.jpg, 00001.jpg, ...
// expected is the estimated frame count used for progress and may be 0.
// Progress stays below 100 until the stream ends since the estimate can be short.
func WriteFrames(ctx context.Context, r io.Reader, outDir string, expected int, progress types.ProgressFunc) (int, types.Outcome, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, types.OutcomeFinished, fmt.Errorf("create %s: %w", outDir, err)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	n := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return n, types.OutcomeCanceled, nil
		default:
		}
		if n > types.MaxFrameIndex {
			return n, types.OutcomeFinished, fmt.Errorf("more than %d frames", types.MaxFrameIndex+1)
		}
		path := filepath.Join(outDir, types.FrameFileName(n))
		if err := os.WriteFile(path, scanner.Bytes(), 0644); err != nil {
			return n, types.OutcomeFinished, fmt.Errorf("write %s: %w", path, err)
		}
		n++
		if progress != nil {
			progress(min(99, types.Percent(n, expected)))
		}
	}
	if err := scanner.Err(); err != nil {
		// A canceled decoder closes the pipe early; that is not a scan failure.
		if ctx.Err() != nil {
			return n, types.OutcomeCanceled, nil
		}
		return n, types.OutcomeFinished, fmt.Errorf("frame scanner failed: %w", err)
	}
	if ctx.Err() != nil {
		return n, types.OutcomeCanceled, nil
	}
	if progress != nil {
		progress(100)
	}
	return n, types.OutcomeFinished, nil
}

// Run decodes video into outDir through ffmpeg. It returns the number of
// frames written.
func Run(ctx context.Context, video, outDir string, opts Options, progress types.ProgressFunc) (int, types.Outcome, error) {
	if err := opts.Validate(); err != nil {
		return 0, types.OutcomeFinished, err
	}
	if err := utils.RequireTool("ffmpeg"); err != nil {
		return 0, types.OutcomeFinished, err
	}

	expected := 0
	if d, err := utils.GetDuration(ctx, video); err == nil {
		expected = utils.EstimateFrames(d, opts.Interval)
	}

	ffmpeg := utils.NewFFmpegCmd(ctx, video, opts.Interval, opts.Quality)
	out, err := ffmpeg.StdoutPipe()
	if err != nil {
		return 0, types.OutcomeFinished, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := ffmpeg.Start(); err != nil {
		return 0, types.OutcomeFinished, fmt.Errorf("start ffmpeg: %w", err)
	}

	n, outcome, werr := WriteFrames(ctx, out, outDir, expected, progress)
	if werr != nil || outcome == types.OutcomeCanceled {
		// Drain so Wait does not block on a full pipe.
		_, _ = io.Copy(io.Discard, out)
	}
	waitErr := ffmpeg.Wait()

	switch {
	case outcome == types.OutcomeCanceled || (waitErr != nil && ctx.Err() != nil):
		return n, types.OutcomeCanceled, nil
	case werr != nil:
		return n, types.OutcomeFinished, werr
	case waitErr != nil:
		return n, types.OutcomeFinished, &ProcessError{Err: waitErr, Stderr: strings.TrimSpace(ffmpeg.Stderr.String())}
	case n == 0:
		return 0, types.OutcomeFinished, ErrNoFrames
	}
	return n, types.OutcomeFinished, nil
}

// SceneLots converts crop-eligible lots into scene lots.
func SceneLots(ls []lots.Lot) []timeline.SceneLot {
	out := make([]timeline.SceneLot, 0, len(ls))
	for _, l := range ls {
		if !l.Crop {
			continue
		}
		out = append(out, timeline.SceneLot{ID: l.ID, Quad: l.Quad.Flat()})
	}
	return out
}

// WriteSkeletons creates or refreshes scene.json and conditions.json in dir.
// An existing scene keeps its labels and only has its lot list replaced. An
// existing conditions file keeps its labels and times.
func WriteSkeletons(dir, video string, sceneLots []timeline.SceneLot, interval int) error {
	scenePath := filepath.Join(dir, SceneFile)
	var scene *timeline.Scene
	if _, err := os.Stat(scenePath); err == nil {
		scene, err = timeline.ReadScene(scenePath)
		if err != nil {
			return err
		}
		scene.SyncLots(sceneLots)
	} else if errors.Is(err, os.ErrNotExist) {
		scene = timeline.NewScene(video, sceneLots)
	} else {
		return fmt.Errorf("stat %s: %w", scenePath, err)
	}
	if video != "" {
		scene.VideoPath = video
	}
	if err := timeline.WriteScene(scenePath, scene); err != nil {
		return err
	}

	condPath := filepath.Join(dir, ConditionsFile)
	var cond *timeline.Conditions
	if _, err := os.Stat(condPath); err == nil {
		cond, err = timeline.ReadConditions(condPath)
		if err != nil {
			return err
		}
		cond.Interval = timeline.Interval(interval)
		if video != "" {
			cond.VideoPath = video
		}
	} else if errors.Is(err, os.ErrNotExist) {
		cond = timeline.NewConditions(video, interval)
	} else {
		return fmt.Errorf("stat %s: %w", condPath, err)
	}
	return timeline.WriteConditions(condPath, cond)
}
