// Package crop cuts one masked, letterboxed model tile per lot out of every
// raw frame.
package crop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/types"
)

var (
	ErrNoFrames  = errors.New("no raw frames to crop")
	ErrNoRegions = errors.New("no crop-eligible lots")
)

// Options control tile geometry and encoding.
type Options struct {
	UpsampleRate float64
	ModelWidth   int
	ModelHeight  int
	Quality      int
}

// DefaultOptions returns the standard 224x224 tile settings.
func DefaultOptions() Options {
	return Options{UpsampleRate: 1.5, ModelWidth: 224, ModelHeight: 224, Quality: 100}
}

// Validate checks that opts can produce tiles.
func (o Options) Validate() error {
	if o.UpsampleRate < 1 {
		return fmt.Errorf("upsample rate %v must be >= 1", o.UpsampleRate)
	}
	if o.ModelWidth <= 0 || o.ModelHeight <= 0 {
		return fmt.Errorf("model dimensions %dx%d must be positive", o.ModelWidth, o.ModelHeight)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return fmt.Errorf("quality %d must be in 1..100", o.Quality)
	}
	return nil
}

// Region is one lot as the pipeline sees it.
type Region struct {
	ID   string
	Quad geometry.Quad
}

// Regions snapshots the crop-eligible lots.
func Regions(ls []lots.Lot) []Region {
	var out []Region
	for _, l := range ls {
		if l.Crop {
			out = append(out, Region{ID: l.ID, Quad: l.Quad})
		}
	}
	return out
}

// FrameError reports the raw frame that could not be decoded.
type FrameError struct {
	Frame string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("failed to decode frame %s: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Job is an immutable crop run. It owns copies of its inputs, so later edits
// to the lot store do not reach a run in progress.
type Job struct {
	regions []Region
	frames  []string
	outDir  string
	opts    Options
}

// NewJob snapshots regions and frame paths. Frames are processed in name order.
func NewJob(regions []Region, frames []string, outDir string, opts Options) (*Job, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	j := &Job{
		regions: append([]Region(nil), regions...),
		frames:  append([]string(nil), frames...),
		outDir:  outDir,
		opts:    opts,
	}
	sort.Slice(j.frames, func(a, b int) bool { return filepath.Base(j.frames[a]) < filepath.Base(j.frames[b]) })
	return j, nil
}

// Frames returns the number of frames the job will process.
func (j *Job) Frames() int { return len(j.frames) }

// ListFrames returns the .jpg files of rawDir in name order.
func ListFrames(rawDir string) ([]string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), types.FrameExt) {
			continue
		}
		out = append(out, filepath.Join(rawDir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Run writes <outDir>/<region id>/<frame name> for every frame and region.
// Cancellation is checked before each frame; a canceled run returns
// OutcomeCanceled and a nil error. progress receives the whole percentage of
// frames done after each frame.
func (j *Job) Run(ctx context.Context, progress types.ProgressFunc) (types.Outcome, error) {
	for _, r := range j.regions {
		if err := os.MkdirAll(filepath.Join(j.outDir, r.ID), 0755); err != nil {
			return types.OutcomeFinished, fmt.Errorf("failed to create lot dir %s: %w", r.ID, err)
		}
	}

	total := len(j.frames)
	for i, frame := range j.frames {
		select {
		case <-ctx.Done():
			return types.OutcomeCanceled, nil
		default:
		}

		name := filepath.Base(frame)
		src, err := imaging.Open(frame)
		if err != nil {
			return types.OutcomeFinished, &FrameError{Frame: name, Err: err}
		}
		for _, r := range j.regions {
			tile := Tile(src, r.Quad, j.opts)
			dst := filepath.Join(j.outDir, r.ID, name)
			if err := imaging.Save(tile, dst, imaging.JPEGQuality(j.opts.Quality)); err != nil {
				return types.OutcomeFinished, fmt.Errorf("failed to write %s: %w", dst, err)
			}
		}
		if progress != nil {
			progress(types.Percent(i+1, total))
		}
	}
	return types.OutcomeFinished, nil
}

// Window is the square crop around q: the bounding box's long side scaled by
// upsample, centred on the box and clipped to bounds.
func Window(q geometry.Quad, bounds image.Rectangle, upsample float64) image.Rectangle {
	bb := q.Bounds()
	side := math.Max(bb.Dx(), bb.Dy()) * upsample
	c := bb.Center()
	r := image.Rect(
		int(math.Floor(c.X-side/2)),
		int(math.Floor(c.Y-side/2)),
		int(math.Ceil(c.X+side/2)),
		int(math.Ceil(c.Y+side/2)),
	)
	return r.Intersect(bounds)
}

// Mask rasterises q into an alpha mask covering window, in window-local
// coordinates.
func Mask(q geometry.Quad, window image.Rectangle) *image.Alpha {
	w, h := window.Dx(), window.Dy()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	z := vector.NewRasterizer(w, h)
	ox, oy := float64(window.Min.X), float64(window.Min.Y)
	z.MoveTo(float32(q[0].X-ox), float32(q[0].Y-oy))
	for _, p := range q[1:] {
		z.LineTo(float32(p.X-ox), float32(p.Y-oy))
	}
	z.ClosePath()
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// Tile crops, masks and letterboxes q out of src. The composite keeps its
// aspect ratio and is centred on a black model-sized canvas.
func Tile(src image.Image, q geometry.Quad, opts Options) *image.NRGBA {
	canvas := imaging.New(opts.ModelWidth, opts.ModelHeight, color.Black)
	window := Window(q, src.Bounds(), opts.UpsampleRate)
	if window.Empty() {
		return canvas
	}

	cropped := imaging.Crop(src, window)
	composite := imaging.New(window.Dx(), window.Dy(), color.Black)
	draw.DrawMask(composite, composite.Bounds(), cropped, image.Point{}, Mask(q, window), image.Point{}, draw.Over)

	scale := math.Min(float64(opts.ModelWidth)/float64(window.Dx()), float64(opts.ModelHeight)/float64(window.Dy()))
	w := max(1, int(math.Round(float64(window.Dx())*scale)))
	h := max(1, int(math.Round(float64(window.Dy())*scale)))
	resized := imaging.Resize(composite, min(w, opts.ModelWidth), min(h, opts.ModelHeight), imaging.Lanczos)
	return imaging.PasteCenter(canvas, resized)
}
