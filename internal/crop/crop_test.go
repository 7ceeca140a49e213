package crop

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/types"
)

func rect(x0, y0, x1, y1 float64) geometry.Quad {
	return geometry.RectFromPoints(geometry.Point{X: x0, Y: y0}, geometry.Point{X: x1, Y: y1}).Corners()
}

// writeFrames writes n small solid frames to dir and returns their paths.
func writeFrames(t *testing.T, dir string, n int) []string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	img := imaging.New(48, 32, color.NRGBA{R: 200, G: 180, B: 40, A: 255})
	paths := make([]string, n)
	for i := 0; i < n; i++ {
		paths[i] = filepath.Join(dir, types.FrameFileName(i))
		if err := imaging.Save(img, paths[i]); err != nil {
			t.Fatal(err)
		}
	}
	return paths
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func smallOptions() Options {
	return Options{UpsampleRate: 1.5, ModelWidth: 16, ModelHeight: 16, Quality: 90}
}

var twoRegions = []Region{
	{ID: "A1", Quad: rect(2, 2, 14, 14)},
	{ID: "A2", Quad: rect(24, 4, 40, 28)},
}

func TestRunProducesTilePerLotAndFrame(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, filepath.Join(dir, "raw"), 100)

	job, err := NewJob(twoRegions, frames, dir, smallOptions())
	if err != nil {
		t.Fatal(err)
	}

	var seen []int
	outcome, err := job.Run(context.Background(), func(p int) { seen = append(seen, p) })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outcome != types.OutcomeFinished {
		t.Errorf("outcome = %v", outcome)
	}
	if n := countFiles(t, filepath.Join(dir, "A1")) + countFiles(t, filepath.Join(dir, "A2")); n != 200 {
		t.Errorf("wrote %d tiles, want 200", n)
	}

	if len(seen) != 100 {
		t.Fatalf("got %d progress reports, want one per frame", len(seen))
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards at %d: %v", i, seen[i-1:i+1])
		}
	}
	for i, p := range seen[:99] {
		if p == 100 {
			t.Fatalf("progress reached 100 after frame %d", i+1)
		}
	}
	if seen[99] != 100 {
		t.Errorf("final progress = %d", seen[99])
	}

	tile, err := imaging.Open(filepath.Join(dir, "A2", "00042.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if b := tile.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Errorf("tile size = %v", b)
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, filepath.Join(dir, "raw"), 100)
	job, err := NewJob(twoRegions, frames, dir, smallOptions())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outcome, err := job.Run(ctx, func(p int) {
		if p >= 40 {
			cancel()
		}
	})
	if err != nil {
		t.Fatalf("cancel should not be an error: %v", err)
	}
	if outcome != types.OutcomeCanceled {
		t.Errorf("outcome = %v, want canceled", outcome)
	}
	if n := countFiles(t, filepath.Join(dir, "A1")) + countFiles(t, filepath.Join(dir, "A2")); n > 80 {
		t.Errorf("wrote %d tiles after cancel at 40 frames", n)
	}
}

func TestRunCorruptFrame(t *testing.T) {
	dir := t.TempDir()
	frames := writeFrames(t, filepath.Join(dir, "raw"), 3)
	if err := os.WriteFile(frames[1], []byte("not a jpeg"), 0644); err != nil {
		t.Fatal(err)
	}
	job, _ := NewJob(twoRegions, frames, dir, smallOptions())

	_, err := job.Run(context.Background(), nil)
	var fe *FrameError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FrameError, got %v", err)
	}
	if fe.Frame != "00001.jpg" {
		t.Errorf("FrameError.Frame = %q", fe.Frame)
	}
}

func TestNewJobValidation(t *testing.T) {
	if _, err := NewJob(twoRegions, nil, t.TempDir(), DefaultOptions()); !errors.Is(err, ErrNoFrames) {
		t.Errorf("no frames error = %v", err)
	}
	if _, err := NewJob(nil, []string{"00000.jpg"}, t.TempDir(), DefaultOptions()); !errors.Is(err, ErrNoRegions) {
		t.Errorf("no regions error = %v", err)
	}
	bad := DefaultOptions()
	bad.Quality = 0
	if _, err := NewJob(twoRegions, []string{"00000.jpg"}, t.TempDir(), bad); err == nil {
		t.Error("quality 0 accepted")
	}
}

func TestJobSnapshot(t *testing.T) {
	regions := []Region{{ID: "A1", Quad: rect(0, 0, 4, 4)}}
	frames := []string{"b/00002.jpg", "a/00001.jpg"}
	job, err := NewJob(regions, frames, t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	regions[0].ID = "changed"
	frames[0] = "changed"
	if job.regions[0].ID != "A1" || job.frames[0] != "a/00001.jpg" || job.frames[1] != "b/00002.jpg" {
		t.Errorf("job aliased its inputs: %+v %v", job.regions, job.frames)
	}
}

func TestWindow(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	tests := []struct {
		name string
		q    geometry.Quad
		want image.Rectangle
	}{
		{"square in middle", rect(40, 40, 60, 60), image.Rect(35, 35, 65, 65)},
		{"wide box uses long side", rect(30, 45, 70, 55), image.Rect(20, 20, 80, 80)},
		{"clipped at corner", rect(0, 0, 20, 20), image.Rect(0, 0, 25, 25)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Window(tt.q, bounds, 1.5); got != tt.want {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTileMasksOutsideQuad(t *testing.T) {
	src := imaging.New(100, 100, color.White)
	// A diamond leaves the window corners outside the quad.
	q := geometry.Quad{{X: 50, Y: 30}, {X: 70, Y: 50}, {X: 50, Y: 70}, {X: 30, Y: 50}}
	tile := Tile(src, q, Options{UpsampleRate: 1.0, ModelWidth: 40, ModelHeight: 40, Quality: 100})

	if b := tile.Bounds(); b.Dx() != 40 || b.Dy() != 40 {
		t.Fatalf("tile size = %v", b)
	}
	for _, p := range []image.Point{{0, 0}, {39, 0}, {0, 39}, {39, 39}, {3, 3}} {
		r, g, b, _ := tile.At(p.X, p.Y).RGBA()
		if r > 0x0800 || g > 0x0800 || b > 0x0800 {
			t.Errorf("pixel %v outside quad is not black: %v", p, tile.At(p.X, p.Y))
		}
	}
	r, g, b, _ := tile.At(20, 20).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 {
		t.Errorf("centre pixel should keep the source colour, got %v", tile.At(20, 20))
	}
}

func TestTileLetterboxesClippedWindow(t *testing.T) {
	src := imaging.New(100, 100, color.White)
	// Near the left edge the window is clipped to 25 wide and 30 tall.
	q := rect(0, 40, 20, 60)
	tile := Tile(src, q, Options{UpsampleRate: 1.5, ModelWidth: 60, ModelHeight: 60, Quality: 100})

	// The 25x30 composite scales to 50x60, leaving 5px black bars left and right.
	for _, x := range []int{0, 2, 57, 59} {
		r, _, _, _ := tile.At(x, 30).RGBA()
		if r > 0x0800 {
			t.Errorf("column %d should be letterbox black, got %v", x, tile.At(x, 30))
		}
	}
	r, _, _, _ := tile.At(20, 30).RGBA()
	if r < 0xf000 {
		t.Errorf("inside quad should be white, got %v", tile.At(20, 30))
	}
}

func TestRegionsFromLots(t *testing.T) {
	ls := []lots.Lot{
		{ID: "A1", Quad: rect(0, 0, 1, 1), Crop: true},
		{ID: "A2", Quad: rect(0, 0, 1, 1), Crop: false},
	}
	got := Regions(ls)
	if len(got) != 1 || got[0].ID != "A1" {
		t.Errorf("Regions() = %+v", got)
	}
}
