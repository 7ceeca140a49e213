// Package timeline stores sparse frame-indexed labels as step functions and
// reads and writes the scene and conditions files built on them.
package timeline

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/andresmejia3/lotannot/internal/types"
)

var (
	ErrFrameExists        = errors.New("frame already labeled")
	ErrInvalidFrame       = errors.New("invalid frame key")
	ErrNoEntry            = errors.New("no entry")
	ErrUnknownBucket      = errors.New("unknown bucket")
	ErrUnsupportedVersion = errors.New("unsupported file version")
)

// Flags that can be attached to an occupancy entry.
const (
	FlagOccluded  = "occluded"
	FlagPerson    = "person"
	FlagAmbiguous = "ambiguous"
)

// KnownFlags lists the flags in display order.
var KnownFlags = []string{FlagOccluded, FlagPerson, FlagAmbiguous}

// Occupancy labels.
const (
	LabelFree = "free"
	LabelBusy = "busy"
)

// Entry is one explicit label at a frame.
type Entry struct {
	Frame string
	Label string
	Flags []string
}

// HasFlag reports whether flag is attached.
func (e Entry) HasFlag(flag string) bool {
	return slices.Contains(e.Flags, flag)
}

func (e Entry) clone() Entry {
	e.Flags = append([]string{}, e.Flags...)
	return e
}

// LastLabel is the occupancy state in effect at a frame.
type LastLabel int

const (
	LastLabelNone LastLabel = iota
	LastLabelFree
	LastLabelBusy
)

func (l LastLabel) String() string {
	switch l {
	case LastLabelFree:
		return LabelFree
	case LastLabelBusy:
		return LabelBusy
	default:
		return "none"
	}
}

type subscription struct {
	id int
	fn func(bucket string)
}

// Timeline maps bucket keys to entries sorted by frame. Frame keys have a fixed
// width, so string order is numeric order. Not safe for concurrent use.
type Timeline struct {
	buckets map[string][]Entry
	dirty   bool

	subs   []subscription
	nextID int
}

// New returns an empty timeline with the given buckets.
func New(buckets ...string) *Timeline {
	t := &Timeline{buckets: make(map[string][]Entry)}
	for _, b := range buckets {
		t.buckets[b] = nil
	}
	return t
}

// Subscribe registers fn to be called with the bucket that changed.
func (t *Timeline) Subscribe(fn func(bucket string)) func() {
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription{id: id, fn: fn})
	return func() {
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

func (t *Timeline) changed(bucket string) {
	t.dirty = true
	for _, s := range append([]subscription(nil), t.subs...) {
		s.fn(bucket)
	}
}

func (t *Timeline) Dirty() bool { return t.dirty }

// MarkClean clears the dirty flag after a save.
func (t *Timeline) MarkClean() { t.dirty = false }

// Buckets returns the bucket keys in sorted order.
func (t *Timeline) Buckets() []string {
	keys := make([]string, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasBucket reports whether bucket exists.
func (t *Timeline) HasBucket(bucket string) bool {
	_, ok := t.buckets[bucket]
	return ok
}

// AddBucket creates an empty bucket. It reports false if it already existed.
func (t *Timeline) AddBucket(bucket string) bool {
	if t.HasBucket(bucket) {
		return false
	}
	t.buckets[bucket] = nil
	t.changed(bucket)
	return true
}

// Entries returns a copy of the bucket's entries in frame order.
func (t *Timeline) Entries(bucket string) []Entry {
	src := t.buckets[bucket]
	out := make([]Entry, len(src))
	for i, e := range src {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries in bucket.
func (t *Timeline) Len(bucket string) int { return len(t.buckets[bucket]) }

// CountFlag returns how many entries in bucket carry flag.
func (t *Timeline) CountFlag(bucket, flag string) int {
	n := 0
	for _, e := range t.buckets[bucket] {
		if e.HasFlag(flag) {
			n++
		}
	}
	return n
}

func checkFrame(frame string) error {
	if !types.IsFrameKey(frame) {
		return fmt.Errorf("%w: %q", ErrInvalidFrame, frame)
	}
	return nil
}

// upper returns the index of the first entry whose frame is > frame.
func upper(entries []Entry, frame string) int {
	return sort.Search(len(entries), func(i int) bool { return entries[i].Frame > frame })
}

func (t *Timeline) lookup(bucket, frame string) ([]Entry, int, error) {
	entries, ok := t.buckets[bucket]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if err := checkFrame(frame); err != nil {
		return nil, 0, err
	}
	return entries, upper(entries, frame), nil
}

// Insert records label at frame. An existing entry at the same frame is an
// error, never overwritten.
func (t *Timeline) Insert(bucket, frame, label string, flags ...string) error {
	entries, i, err := t.lookup(bucket, frame)
	if err != nil {
		return err
	}
	if i > 0 && entries[i-1].Frame == frame {
		return fmt.Errorf("%w: %s at %s", ErrFrameExists, bucket, frame)
	}
	e := Entry{Frame: frame, Label: label, Flags: []string{}}
	for _, f := range flags {
		if !e.HasFlag(f) {
			e.Flags = append(e.Flags, f)
		}
	}
	t.buckets[bucket] = slices.Insert(entries, i, e)
	t.changed(bucket)
	return nil
}

// At returns the entry at exactly frame.
func (t *Timeline) At(bucket, frame string) (Entry, bool) {
	entries, i, err := t.lookup(bucket, frame)
	if err != nil || i == 0 || entries[i-1].Frame != frame {
		return Entry{}, false
	}
	return entries[i-1].clone(), true
}

// Remove deletes the entry at exactly frame.
func (t *Timeline) Remove(bucket, frame string) error {
	entries, i, err := t.lookup(bucket, frame)
	if err != nil {
		return err
	}
	if i == 0 || entries[i-1].Frame != frame {
		return fmt.Errorf("%w: %s at %s", ErrNoEntry, bucket, frame)
	}
	t.buckets[bucket] = slices.Delete(entries, i-1, i)
	t.changed(bucket)
	return nil
}

// RemoveAt deletes the index-th entry of bucket.
func (t *Timeline) RemoveAt(bucket string, index int) error {
	entries, ok := t.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if index < 0 || index >= len(entries) {
		return fmt.Errorf("%w: %s index %d", ErrNoEntry, bucket, index)
	}
	t.buckets[bucket] = slices.Delete(entries, index, index+1)
	t.changed(bucket)
	return nil
}

// NearestPreceding returns the entry with the greatest frame <= frame.
func (t *Timeline) NearestPreceding(bucket, frame string) (Entry, bool) {
	entries, i, err := t.lookup(bucket, frame)
	if err != nil || i == 0 {
		return Entry{}, false
	}
	return entries[i-1].clone(), true
}

// NearestFollowing returns the entry with the smallest frame > frame.
func (t *Timeline) NearestFollowing(bucket, frame string) (Entry, bool) {
	entries, i, err := t.lookup(bucket, frame)
	if err != nil || i == len(entries) {
		return Entry{}, false
	}
	return entries[i].clone(), true
}

// Label is the step-function value of bucket at frame.
func (t *Timeline) Label(bucket, frame string) (string, bool) {
	e, ok := t.NearestPreceding(bucket, frame)
	return e.Label, ok
}

// LastLabel classifies the occupancy label in effect at frame.
func (t *Timeline) LastLabel(bucket, frame string) LastLabel {
	label, ok := t.Label(bucket, frame)
	switch {
	case !ok:
		return LastLabelNone
	case label == LabelFree:
		return LastLabelFree
	case label == LabelBusy:
		return LastLabelBusy
	default:
		return LastLabelNone
	}
}

// FlagsAt returns the flags of the entry in effect at frame.
func (t *Timeline) FlagsAt(bucket, frame string) []string {
	e, ok := t.NearestPreceding(bucket, frame)
	if !ok {
		return nil
	}
	return e.Flags
}

// AttachFlag adds flag to the entry in effect at current without creating a
// new entry. Attaching a flag that is already present changes nothing.
func (t *Timeline) AttachFlag(bucket, current, flag string) error {
	entries, i, err := t.lookup(bucket, current)
	if err != nil {
		return err
	}
	if i == 0 {
		return fmt.Errorf("%w: %s has nothing at or before %s", ErrNoEntry, bucket, current)
	}
	e := &entries[i-1]
	if e.HasFlag(flag) {
		return nil
	}
	e.Flags = append(e.Flags, flag)
	t.changed(bucket)
	return nil
}

// OffsetFrames shifts every entry except those at frame 0 by n frames. The
// whole shift is rejected if any key would fall outside the key range or land
// on another entry of the same bucket.
func (t *Timeline) OffsetFrames(n int) error {
	if n == 0 {
		return nil
	}
	shifted := make(map[string][]Entry, len(t.buckets))
	for bucket, entries := range t.buckets {
		out := make([]Entry, 0, len(entries))
		seen := make(map[string]bool, len(entries))
		for _, e := range entries {
			idx, err := types.ParseFrameKey(e.Frame)
			if err != nil {
				return err
			}
			if idx != 0 {
				idx += n
			}
			if idx < 0 || idx > types.MaxFrameIndex {
				return fmt.Errorf("%w: %s frame %s shifted by %d", ErrInvalidFrame, bucket, e.Frame, n)
			}
			key := types.FrameKey(idx)
			if seen[key] {
				return fmt.Errorf("%w: %s at %s after shift", ErrFrameExists, bucket, key)
			}
			seen[key] = true
			e = e.clone()
			e.Frame = key
			out = append(out, e)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
		shifted[bucket] = out
	}
	t.buckets = shifted
	for _, b := range t.Buckets() {
		t.changed(b)
	}
	return nil
}
