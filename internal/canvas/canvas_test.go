package canvas

import (
	"errors"
	"testing"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
)

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

func square(x, y, side float64) geometry.Quad {
	return geometry.RectFromPoints(pt(x, y), pt(x+side, y+side)).Corners()
}

func newCanvas(t *testing.T, prompt IDPrompter) (*Canvas, *lots.Store) {
	t.Helper()
	s := lots.New()
	if err := s.AddLot("A1", square(100, 100, 100)); err != nil {
		t.Fatal(err)
	}
	c := New(s, prompt)
	t.Cleanup(c.Close)
	return c, s
}

func TestHighlight(t *testing.T) {
	c, _ := newCanvas(t, nil)

	tests := []struct {
		name string
		zoom float64
		p    geometry.Point
		want Highlight
	}{
		{"near vertex", 1, pt(105, 105), Highlight{Lot: 0, Vertex: 0}},
		{"inside lot", 1, pt(150, 150), Highlight{Lot: 0, Vertex: -1}},
		{"outside", 1, pt(10, 10), Highlight{Lot: -1, Vertex: -1}},
		{"zoomed in shrinks radius", 4, pt(105, 105), Highlight{Lot: 0, Vertex: -1}},
		{"zoomed out grows radius", 0.5, pt(80, 80), Highlight{Lot: 0, Vertex: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.SetZoom(tt.zoom); err != nil {
				t.Fatal(err)
			}
			c.PointerMove(tt.p)
			if got := c.Highlight(); got != tt.want {
				t.Errorf("Highlight() = %+v, want %+v", got, tt.want)
			}
		})
	}

	if err := c.SetZoom(0); !errors.Is(err, ErrBadZoom) {
		t.Errorf("SetZoom(0) error = %v", err)
	}
}

func TestDragVertex(t *testing.T) {
	c, s := newCanvas(t, nil)

	c.PointerMove(pt(198, 198))
	c.PointerDown(pt(198, 198))
	if c.State() != DraggingVertex {
		t.Fatalf("State() = %v, want dragging-vertex", c.State())
	}
	c.PointerMove(pt(220, 230))
	lot, _ := s.Lot(0)
	if lot.Quad[2] != pt(220, 230) {
		t.Errorf("vertex not moved: %v", lot.Quad)
	}

	// Collapsing onto the diagonal is refused; the previous valid position stays.
	c.PointerMove(pt(150, 150))
	lot, _ = s.Lot(0)
	if lot.Quad[2] != pt(220, 230) {
		t.Errorf("non-convex drag applied: %v", lot.Quad)
	}

	if err := c.PointerUp(pt(150, 150)); err != nil {
		t.Fatal(err)
	}
	if c.State() != Idle {
		t.Errorf("State() = %v after release", c.State())
	}
}

func TestDragLotSelects(t *testing.T) {
	c, s := newCanvas(t, nil)

	c.PointerMove(pt(150, 150))
	c.PointerDown(pt(150, 150))
	if c.State() != DraggingLot {
		t.Fatalf("State() = %v, want dragging-lot", c.State())
	}
	if i, ok := s.Selected(); !ok || i != 0 {
		t.Errorf("lot should be selected, got %d %v", i, ok)
	}
	c.PointerMove(pt(155, 150))
	c.PointerMove(pt(160, 140))
	_ = c.PointerUp(pt(160, 140))

	lot, _ := s.Lot(0)
	if lot.Quad != square(110, 90, 100) {
		t.Errorf("lot moved to %v", lot.Quad)
	}
}

func TestDrawNewLot(t *testing.T) {
	var asked geometry.Rect
	prompt := PromptFunc(func(r geometry.Rect) (string, bool) {
		asked = r
		return "B7", true
	})
	c, s := newCanvas(t, prompt)
	c.SetTool(ToolDraw)

	c.PointerMove(pt(400, 300))
	c.PointerDown(pt(400, 300))
	if c.State() != DrawingNewLot {
		t.Fatalf("State() = %v", c.State())
	}
	c.PointerMove(pt(300, 350))
	if r, ok := c.DragRect(); !ok || r.Min != pt(300, 300) || r.Max != pt(400, 350) {
		t.Errorf("DragRect() = %+v %v", r, ok)
	}
	if err := c.PointerUp(pt(300, 350)); err != nil {
		t.Fatalf("PointerUp failed: %v", err)
	}
	if asked.Min != pt(300, 300) {
		t.Errorf("prompt got %+v", asked)
	}

	i, ok := s.Index("B7")
	if !ok {
		t.Fatal("lot B7 not added")
	}
	lot, _ := s.Lot(i)
	want := geometry.Quad{pt(300, 300), pt(400, 300), pt(400, 350), pt(300, 350)}
	if lot.Quad != want {
		t.Errorf("corners = %v, want %v", lot.Quad, want)
	}
	if c.State() != Idle {
		t.Errorf("State() = %v after release", c.State())
	}
	if _, ok := c.DragRect(); ok {
		t.Error("DragRect should be gone after release")
	}
}

func TestDrawRejections(t *testing.T) {
	calls := 0
	prompt := PromptFunc(func(geometry.Rect) (string, bool) {
		calls++
		return "A1", true
	})

	t.Run("duplicate id surfaces error", func(t *testing.T) {
		c, s := newCanvas(t, prompt)
		c.SetTool(ToolDraw)
		c.PointerMove(pt(400, 400))
		c.PointerDown(pt(400, 400))
		err := c.PointerUp(pt(450, 450))
		if !errors.Is(err, lots.ErrDuplicateID) {
			t.Errorf("PointerUp() error = %v", err)
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d", s.Len())
		}
	})

	t.Run("press on existing lot draws nothing", func(t *testing.T) {
		c, s := newCanvas(t, prompt)
		c.SetTool(ToolDraw)
		before := calls
		c.PointerMove(pt(150, 150))
		c.PointerDown(pt(150, 150))
		c.PointerMove(pt(300, 300))
		_ = c.PointerUp(pt(300, 300))
		if calls != before {
			t.Error("prompt shown for a drag that began on a lot")
		}
		if lot, _ := s.Lot(0); lot.Quad != square(100, 100, 100) {
			t.Error("draw mode must not move lots")
		}
	})

	t.Run("zero area skips prompt", func(t *testing.T) {
		c, _ := newCanvas(t, prompt)
		c.SetTool(ToolDraw)
		before := calls
		c.PointerMove(pt(400, 400))
		c.PointerDown(pt(400, 400))
		_ = c.PointerUp(pt(400, 450))
		if calls != before {
			t.Error("prompt shown for a zero-width rectangle")
		}
	})

	t.Run("dismissed prompt", func(t *testing.T) {
		s := lots.New()
		c := New(s, PromptFunc(func(geometry.Rect) (string, bool) { return "", false }))
		defer c.Close()
		c.SetTool(ToolDraw)
		c.PointerDown(pt(0, 0))
		if err := c.PointerUp(pt(10, 10)); err != nil {
			t.Fatal(err)
		}
		if s.Len() != 0 {
			t.Error("dismissed prompt added a lot")
		}
	})
}

func TestNoneToolDoesNotDraw(t *testing.T) {
	called := false
	c, s := newCanvas(t, PromptFunc(func(geometry.Rect) (string, bool) {
		called = true
		return "X", true
	}))
	c.PointerMove(pt(400, 400))
	c.PointerDown(pt(400, 400))
	_ = c.PointerUp(pt(500, 500))
	if called || s.Len() != 1 {
		t.Error("tool none must not add lots")
	}
}

func TestKeys(t *testing.T) {
	c, s := newCanvas(t, nil)
	_ = s.AddLot("A2", square(300, 100, 50))

	// Delete with nothing selected is a no-op.
	if err := c.KeyDelete(); err != nil || s.Len() != 2 {
		t.Fatalf("KeyDelete() = %v, Len() = %d", err, s.Len())
	}

	c.PointerMove(pt(325, 125))
	c.PointerDown(pt(325, 125))
	_ = c.PointerUp(pt(325, 125))
	c.KeyEscape()
	if _, ok := s.Selected(); ok {
		t.Error("escape should clear the selection")
	}

	c.PointerDown(pt(325, 125))
	_ = c.PointerUp(pt(325, 125))
	if err := c.KeyDelete(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Index("A2"); ok || s.Len() != 1 {
		t.Error("selected lot was not deleted")
	}
	if c.Highlight().Lot != -1 {
		t.Errorf("highlight should reset, got %+v", c.Highlight())
	}
}

func TestHighlightClearedOnReset(t *testing.T) {
	c, s := newCanvas(t, nil)
	c.PointerMove(pt(150, 150))
	if err := s.Reset(func() lots.Decision { return lots.DecisionDiscard }); err != nil {
		t.Fatal(err)
	}
	if c.Highlight().Lot != -1 {
		t.Errorf("stale highlight %+v", c.Highlight())
	}
}
