// Package lots owns the set of parking-lot quadrilaterals, validates every edit
// against the geometry kernel and persists the lots file.
package lots

import (
	"errors"
	"fmt"
	"strings"

	"github.com/andresmejia3/lotannot/internal/geometry"
)

var (
	ErrDuplicateID     = errors.New("lot id already exists")
	ErrEmptyID         = errors.New("lot id is empty")
	ErrNotConvex       = errors.New("quad is not strictly convex")
	ErrIndexOutOfRange = errors.New("lot index out of range")
	ErrNoPath          = errors.New("lots file path is not set")
	ErrUnsavedChanges  = errors.New("lots have unsaved changes")
	ErrLoadAborted     = errors.New("load aborted by user")
	ErrUnknownLabel    = errors.New("unknown lot label")
	ErrBadID           = errors.New("lot id must be a single path component")
)

// Occupancy labels carried by the legacy label field.
const (
	LabelFree = "free"
	LabelBusy = "busy"
)

// Lot is one parking space.
type Lot struct {
	ID    string
	Quad  geometry.Quad
	Crop  bool
	Label string
}

// Event identifies what changed in a Store.
type Event int

const (
	DataChanged Event = iota
	SelectionChanged
)

func (e Event) String() string {
	switch e {
	case DataChanged:
		return "data-changed"
	case SelectionChanged:
		return "selection-changed"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Decision is the answer to an unsaved-changes prompt.
type Decision int

const (
	DecisionSave Decision = iota
	DecisionDiscard
	DecisionAbort
)

// Resolver is asked what to do with pending edits before they would be lost.
type Resolver func() Decision

type subscription struct {
	id int
	fn func(Event)
}

// Store is the single authoritative list of lots. It is not safe for
// concurrent use; callers hand snapshots to background work instead.
type Store struct {
	lots      []Lot
	selected  int
	dirty     bool
	path      string
	imagePath string

	subs   []subscription
	nextID int
}

// New returns an empty store with no selection.
func New() *Store {
	return &Store{selected: -1}
}

// Subscribe registers fn for change notifications. The returned func removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) emit(events ...Event) {
	for _, e := range events {
		for _, sub := range append([]subscription(nil), s.subs...) {
			sub.fn(e)
		}
	}
}

func (s *Store) checkIndex(i int) error {
	if i < 0 || i >= len(s.lots) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return nil
}

// Len returns the number of lots.
func (s *Store) Len() int { return len(s.lots) }

// Lot returns a copy of the lot at index i.
func (s *Store) Lot(i int) (Lot, bool) {
	if s.checkIndex(i) != nil {
		return Lot{}, false
	}
	return s.lots[i], true
}

// Lots returns a copy of every lot in order.
func (s *Store) Lots() []Lot {
	return append([]Lot(nil), s.lots...)
}

// Index returns the position of the lot with the given id.
func (s *Store) Index(id string) (int, bool) {
	for i, l := range s.lots {
		if l.ID == id {
			return i, true
		}
	}
	return -1, false
}

// Quads returns the quad of every lot in order.
func (s *Store) Quads() []geometry.Quad {
	out := make([]geometry.Quad, len(s.lots))
	for i, l := range s.lots {
		out[i] = l.Quad
	}
	return out
}

// CropEligible is the snapshot handed to the crop pipeline.
func (s *Store) CropEligible() []Lot {
	var out []Lot
	for _, l := range s.lots {
		if l.Crop {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) Dirty() bool       { return s.dirty }
func (s *Store) Path() string      { return s.path }
func (s *Store) ImagePath() string { return s.imagePath }

// SetPath changes where Save writes without touching the data.
func (s *Store) SetPath(path string) { s.path = path }

// SetImagePath records the reference frame the quads were drawn on.
func (s *Store) SetImagePath(path string) {
	if path == s.imagePath {
		return
	}
	s.imagePath = path
	s.dirty = true
	s.emit(DataChanged)
}

// singleComponent reports whether name can be joined onto a directory
// without escaping it.
func singleComponent(name string) bool {
	return name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// CheckID validates a lot id. Ids name crop directories, so they must be
// non-empty single path components.
func CheckID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if !singleComponent(id) {
		return fmt.Errorf("%w: %q", ErrBadID, id)
	}
	return nil
}

// AddLot appends a new lot. Crop eligibility starts enabled.
func (s *Store) AddLot(id string, q geometry.Quad) error {
	if err := CheckID(id); err != nil {
		return err
	}
	if _, ok := s.Index(id); ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if !q.StrictlyConvex() {
		return fmt.Errorf("%w: %q", ErrNotConvex, id)
	}
	s.lots = append(s.lots, Lot{ID: id, Quad: q, Crop: true})
	s.dirty = true
	s.emit(DataChanged)
	return nil
}

// SetVertex moves one vertex. A candidate that is not strictly convex is
// dropped and false is returned with the stored quad untouched.
func (s *Store) SetVertex(li, vi int, p geometry.Point) bool {
	if s.checkIndex(li) != nil || vi < 0 || vi > 3 {
		return false
	}
	candidate := s.lots[li].Quad.WithVertex(vi, p)
	if !candidate.StrictlyConvex() {
		return false
	}
	if candidate == s.lots[li].Quad {
		return true
	}
	s.lots[li].Quad = candidate
	s.dirty = true
	s.emit(DataChanged)
	return true
}

// TranslateLot moves every vertex of a lot by the same delta.
func (s *Store) TranslateLot(li int, dx, dy float64) error {
	if err := s.checkIndex(li); err != nil {
		return err
	}
	if dx == 0 && dy == 0 {
		return nil
	}
	s.lots[li].Quad = s.lots[li].Quad.Translate(dx, dy)
	s.dirty = true
	s.emit(DataChanged)
	return nil
}

// DeleteLot removes a lot and fixes up the selection.
func (s *Store) DeleteLot(li int) error {
	if err := s.checkIndex(li); err != nil {
		return err
	}
	s.lots = append(s.lots[:li], s.lots[li+1:]...)
	s.dirty = true
	events := []Event{DataChanged}
	switch {
	case s.selected == li:
		s.selected = -1
		events = append(events, SelectionChanged)
	case s.selected > li:
		s.selected--
		events = append(events, SelectionChanged)
	}
	s.emit(events...)
	return nil
}

// SetCropFlag toggles crop eligibility.
func (s *Store) SetCropFlag(li int, crop bool) error {
	if err := s.checkIndex(li); err != nil {
		return err
	}
	if s.lots[li].Crop == crop {
		return nil
	}
	s.lots[li].Crop = crop
	s.dirty = true
	s.emit(DataChanged)
	return nil
}

// SetLabel sets the legacy occupancy label.
func (s *Store) SetLabel(li int, label string) error {
	if err := s.checkIndex(li); err != nil {
		return err
	}
	if label != "" && label != LabelFree && label != LabelBusy {
		return fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	if s.lots[li].Label == label {
		return nil
	}
	s.lots[li].Label = label
	s.dirty = true
	s.emit(DataChanged)
	return nil
}

// Select makes lot li the selection.
func (s *Store) Select(li int) error {
	if err := s.checkIndex(li); err != nil {
		return err
	}
	if s.selected == li {
		return nil
	}
	s.selected = li
	s.emit(SelectionChanged)
	return nil
}

// ClearSelection drops the selection if there is one.
func (s *Store) ClearSelection() {
	if s.selected < 0 {
		return
	}
	s.selected = -1
	s.emit(SelectionChanged)
}

// Selected returns the selected index.
func (s *Store) Selected() (int, bool) {
	return s.selected, s.selected >= 0
}

// HitLot returns the first lot whose quad contains p.
func (s *Store) HitLot(p geometry.Point) (int, bool) {
	for i, l := range s.lots {
		if geometry.PointInQuad(p, l.Quad) {
			return i, true
		}
	}
	return -1, false
}

// NearestVertex is geometry.NearestVertex over the stored quads.
func (s *Store) NearestVertex(p geometry.Point) (geometry.Nearest, bool) {
	return geometry.NearestVertex(p, s.Quads())
}

// resolve runs the unsaved-changes protocol before destructive operations.
func (s *Store) resolve(r Resolver) error {
	if !s.dirty {
		return nil
	}
	if r == nil {
		return ErrUnsavedChanges
	}
	switch r() {
	case DecisionSave:
		return s.Save()
	case DecisionDiscard:
		return nil
	default:
		return ErrLoadAborted
	}
}

// Reset discards every lot after resolving unsaved changes.
func (s *Store) Reset(r Resolver) error {
	if err := s.resolve(r); err != nil {
		return err
	}
	hadSelection := s.selected >= 0
	s.lots = nil
	s.selected = -1
	s.dirty = false
	s.imagePath = ""
	s.emit(DataChanged)
	if hadSelection {
		s.emit(SelectionChanged)
	}
	return nil
}
