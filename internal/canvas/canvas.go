// Package canvas turns pointer and key events over the reference frame into
// Lot Store edits: add, move, reshape, select and delete.
package canvas

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
)

// VertexPickRadius is the vertex hit distance in screen pixels at zoom 1.
const VertexPickRadius = 16.0

// Tool is the externally selected editing mode.
type Tool int

const (
	ToolNone Tool = iota
	ToolDraw
)

func (t Tool) String() string {
	if t == ToolDraw {
		return "draw"
	}
	return "none"
}

// State is the gesture currently in progress.
type State int

const (
	Idle State = iota
	DraggingVertex
	DraggingLot
	DrawingNewLot
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case DraggingVertex:
		return "dragging-vertex"
	case DraggingLot:
		return "dragging-lot"
	case DrawingNewLot:
		return "drawing-new-lot"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Highlight is the lot and vertex under the pointer. Vertex is -1 when the
// whole lot is highlighted; Lot is -1 when nothing is.
type Highlight struct {
	Lot    int
	Vertex int
}

var noHighlight = Highlight{Lot: -1, Vertex: -1}

// IDPrompter asks the operator for the id of a freshly drawn lot. ok is false
// when the prompt was dismissed.
type IDPrompter interface {
	PromptLotID(rect geometry.Rect) (id string, ok bool)
}

// PromptFunc adapts a plain function to IDPrompter.
type PromptFunc func(rect geometry.Rect) (string, bool)

func (f PromptFunc) PromptLotID(rect geometry.Rect) (string, bool) { return f(rect) }

var ErrBadZoom = errors.New("zoom must be positive")

// Canvas holds the interaction state. All calls must come from one goroutine.
type Canvas struct {
	store  *lots.Store
	prompt IDPrompter

	tool  Tool
	zoom  float64
	state State
	hl    Highlight

	pointer    geometry.Point
	hasPointer bool
	anchor     geometry.Point

	pressedOnLot    bool
	pressedOnVertex bool

	unsubscribe func()
}

// New attaches a canvas to store. prompt may be nil, in which case drawn
// rectangles are discarded.
func New(store *lots.Store, prompt IDPrompter) *Canvas {
	c := &Canvas{store: store, prompt: prompt, zoom: 1, hl: noHighlight}
	c.unsubscribe = store.Subscribe(c.storeChanged)
	return c
}

// Close detaches the canvas from its store.
func (c *Canvas) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

func (c *Canvas) storeChanged(e lots.Event) {
	if e != lots.DataChanged {
		return
	}
	if c.hl.Lot >= c.store.Len() {
		c.hl = noHighlight
		if c.state == DraggingLot || c.state == DraggingVertex {
			c.state = Idle
		}
	}
}

func (c *Canvas) Tool() Tool           { return c.tool }
func (c *Canvas) State() State         { return c.state }
func (c *Canvas) Zoom() float64        { return c.zoom }
func (c *Canvas) Highlight() Highlight { return c.hl }

// SetTool switches modes and abandons any gesture in progress.
func (c *Canvas) SetTool(t Tool) {
	c.tool = t
	c.resetGesture()
}

// SetZoom changes the display scale used to size the vertex pick radius.
func (c *Canvas) SetZoom(z float64) error {
	if z <= 0 {
		return fmt.Errorf("%w: %v", ErrBadZoom, z)
	}
	c.zoom = z
	return nil
}

// DragRect is the live preview rectangle while a new lot is being drawn.
func (c *Canvas) DragRect() (geometry.Rect, bool) {
	if c.state != DrawingNewLot {
		return geometry.Rect{}, false
	}
	return geometry.RectFromPoints(c.anchor, c.pointer), true
}

func (c *Canvas) updateHighlight(p geometry.Point) {
	c.hl = noHighlight
	n, ok := c.store.NearestVertex(p)
	if !ok {
		return
	}
	if n.Dist < VertexPickRadius/c.zoom {
		c.hl = Highlight{Lot: n.Lot, Vertex: n.Vertex}
		return
	}
	if li, in := c.store.HitLot(p); in {
		c.hl = Highlight{Lot: li, Vertex: -1}
	}
}

// PointerMove handles pointer motion in image coordinates.
func (c *Canvas) PointerMove(p geometry.Point) {
	switch c.state {
	case DraggingVertex:
		c.store.SetVertex(c.hl.Lot, c.hl.Vertex, p)
	case DraggingLot:
		if c.hasPointer {
			_ = c.store.TranslateLot(c.hl.Lot, p.X-c.pointer.X, p.Y-c.pointer.Y)
		}
	case DrawingNewLot:
	default:
		c.updateHighlight(p)
	}
	c.pointer = p
	c.hasPointer = true
}

// PointerDown starts a gesture from whatever is highlighted.
func (c *Canvas) PointerDown(p geometry.Point) {
	c.pointer = p
	c.hasPointer = true
	c.anchor = p
	c.pressedOnLot = c.hl.Lot >= 0
	c.pressedOnVertex = c.hl.Vertex >= 0

	switch {
	case c.tool == ToolNone && c.pressedOnVertex:
		c.state = DraggingVertex
	case c.tool == ToolNone && c.pressedOnLot:
		c.state = DraggingLot
		_ = c.store.Select(c.hl.Lot)
	case c.tool == ToolDraw && !c.pressedOnLot:
		c.state = DrawingNewLot
	}
}

// PointerUp finishes the gesture. A completed rectangle is offered to the
// prompter and added; the error from AddLot is returned unchanged.
func (c *Canvas) PointerUp(p geometry.Point) error {
	defer c.resetGesture()
	c.pointer = p
	if c.state != DrawingNewLot || c.tool != ToolDraw || c.pressedOnLot || c.pressedOnVertex {
		return nil
	}
	rect := geometry.RectFromPoints(c.anchor, p)
	if rect.Empty() || c.prompt == nil {
		return nil
	}
	id, ok := c.prompt.PromptLotID(rect)
	if !ok {
		return nil
	}
	return c.store.AddLot(id, rect.Corners())
}

func (c *Canvas) resetGesture() {
	c.state = Idle
	c.pressedOnLot = false
	c.pressedOnVertex = false
}

// KeyEscape clears the selection.
func (c *Canvas) KeyEscape() {
	c.store.ClearSelection()
}

// KeyDelete removes the selected lot, if any.
func (c *Canvas) KeyDelete() error {
	li, ok := c.store.Selected()
	if !ok {
		return nil
	}
	if err := c.store.DeleteLot(li); err != nil {
		return err
	}
	c.hl = noHighlight
	return nil
}
