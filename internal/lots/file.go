package lots

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/lotannot/internal/geometry"
)

// FileVersion is written into every lots file.
const FileVersion = "0.1"

type fileLot struct {
	ID    string    `json:"id"`
	Quad  []float64 `json:"quad"`
	Crop  bool      `json:"crop"`
	Label string    `json:"label,omitempty"`
}

type file struct {
	Version   string    `json:"version"`
	ImagePath string    `json:"image_path"`
	Lots      []fileLot `json:"lots"`
}

// Document is the decoded contents of a lots file.
type Document struct {
	ImagePath string
	Lots      []Lot
}

// Decode parses and validates a lots file. Quads must be strictly convex and
// ids unique single path components.
func Decode(r io.Reader) (Document, error) {
	var f file
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return Document{}, fmt.Errorf("failed to parse lots file: %w", err)
	}
	doc := Document{ImagePath: f.ImagePath, Lots: make([]Lot, 0, len(f.Lots))}
	seen := make(map[string]bool, len(f.Lots))
	for i, fl := range f.Lots {
		if err := CheckID(fl.ID); err != nil {
			return Document{}, fmt.Errorf("lot %d: %w", i, err)
		}
		if seen[fl.ID] {
			return Document{}, fmt.Errorf("lot %d: %w: %q", i, ErrDuplicateID, fl.ID)
		}
		seen[fl.ID] = true
		if len(fl.Quad) != 8 {
			return Document{}, fmt.Errorf("lot %q: quad has %d values, want 8", fl.ID, len(fl.Quad))
		}
		var flat [8]float64
		copy(flat[:], fl.Quad)
		q := geometry.QuadFromFlat(flat)
		if !q.StrictlyConvex() {
			return Document{}, fmt.Errorf("lot %q: %w", fl.ID, ErrNotConvex)
		}
		doc.Lots = append(doc.Lots, Lot{ID: fl.ID, Quad: q, Crop: fl.Crop, Label: fl.Label})
	}
	return doc, nil
}

// Encode writes doc as an indented lots file.
func Encode(w io.Writer, doc Document) error {
	f := file{Version: FileVersion, ImagePath: doc.ImagePath, Lots: make([]fileLot, 0, len(doc.Lots))}
	for _, l := range doc.Lots {
		flat := l.Quad.Flat()
		f.Lots = append(f.Lots, fileLot{ID: l.ID, Quad: flat[:], Crop: l.Crop, Label: l.Label})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(f)
}

// ReadFile decodes the lots file at path.
func ReadFile(path string) (Document, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer fh.Close()
	doc, err := Decode(fh)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// WriteFile replaces path atomically with the encoded document.
func WriteFile(path string, doc Document) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".lots-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load replaces the store contents with the file at path. Pending edits are
// resolved first; a failed read leaves the store as it was.
func (s *Store) Load(path string, r Resolver) error {
	if err := s.resolve(r); err != nil {
		return err
	}
	doc, err := ReadFile(path)
	if err != nil {
		return err
	}
	s.lots = doc.Lots
	s.imagePath = doc.ImagePath
	s.path = path
	s.dirty = false
	s.selected = -1
	s.emit(DataChanged, SelectionChanged)
	return nil
}

// Save writes the store to its current path.
func (s *Store) Save() error {
	if s.path == "" {
		return ErrNoPath
	}
	if err := WriteFile(s.path, s.document()); err != nil {
		return fmt.Errorf("failed to save lots to %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// SaveAs saves to path and makes it the current path.
func (s *Store) SaveAs(path string) error {
	s.path = path
	return s.Save()
}

func (s *Store) document() Document {
	return Document{ImagePath: s.imagePath, Lots: s.Lots()}
}
