package timeline

import (
	"encoding/json"
	"fmt"
	"os"
)

// SceneLot is a lot as recorded in a scene file.
type SceneLot struct {
	ID   string
	Quad [8]float64
}

// Scene is the in-memory form of a scene file: per-lot occupancy and
// per-lot difficult frames, both keyed by lot id.
type Scene struct {
	VideoPath string
	Lots      []SceneLot
	Occupancy *Timeline
	Difficult *Timeline
}

// NewScene builds an empty scene with one bucket per lot on both timelines.
func NewScene(videoPath string, lots []SceneLot) *Scene {
	s := &Scene{VideoPath: videoPath, Occupancy: New(), Difficult: New()}
	s.SyncLots(lots)
	s.Occupancy.MarkClean()
	s.Difficult.MarkClean()
	return s
}

// SyncLots replaces the lot list and adds empty buckets for new lot ids.
// Labels of lots that already had buckets are kept.
func (s *Scene) SyncLots(lots []SceneLot) {
	s.Lots = append([]SceneLot(nil), lots...)
	for _, l := range lots {
		s.Occupancy.AddBucket(l.ID)
		s.Difficult.AddBucket(l.ID)
	}
}

// LotIDs returns the lot ids in file order.
func (s *Scene) LotIDs() []string {
	ids := make([]string, len(s.Lots))
	for i, l := range s.Lots {
		ids[i] = l.ID
	}
	return ids
}

// Dirty reports unsaved label edits.
func (s *Scene) Dirty() bool { return s.Occupancy.Dirty() || s.Difficult.Dirty() }

type sceneLotJSON struct {
	ID   string    `json:"id"`
	Quad []float64 `json:"quad"`
}

type occupancyJSON struct {
	Label string   `json:"label"`
	Frame string   `json:"frame"`
	Flags []string `json:"flags"`
}

type difficultJSON struct {
	Label string `json:"label"`
	Frame string `json:"frame"`
}

// sceneV1 has no difficult_frames and may omit flags.
type sceneV1 struct {
	Version   string                     `json:"version"`
	VideoPath string                     `json:"video_path"`
	Lots      []sceneLotJSON             `json:"lots"`
	Scenes    map[string][]occupancyJSON `json:"scenes"`
}

type sceneV3 struct {
	Version         string                     `json:"version"`
	VideoPath       string                     `json:"video_path"`
	Lots            []sceneLotJSON             `json:"lots"`
	Scenes          map[string][]occupancyJSON `json:"scenes"`
	DifficultFrames map[string][]difficultJSON `json:"difficult_frames"`
}

func (v sceneV1) upgrade() sceneV3 {
	out := sceneV3{
		Version:         CurrentVersion,
		VideoPath:       v.VideoPath,
		Lots:            v.Lots,
		Scenes:          v.Scenes,
		DifficultFrames: make(map[string][]difficultJSON, len(v.Lots)),
	}
	for _, l := range v.Lots {
		out.DifficultFrames[l.ID] = []difficultJSON{}
	}
	return out
}

// DecodeScene parses any supported scene file version.
func DecodeScene(data []byte) (*Scene, error) {
	version, err := readVersion(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse scene file: %w", err)
	}
	var doc sceneV3
	switch version {
	case "0.1":
		var v1 sceneV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return nil, fmt.Errorf("failed to parse scene file: %w", err)
		}
		doc = v1.upgrade()
	case "0.2", "0.3":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse scene file: %w", err)
		}
	default:
		return nil, unsupported("scene", version)
	}
	return doc.toScene()
}

func (doc sceneV3) toScene() (*Scene, error) {
	s := &Scene{VideoPath: doc.VideoPath, Occupancy: New(), Difficult: New()}
	for _, l := range doc.Lots {
		if len(l.Quad) != 8 {
			return nil, fmt.Errorf("scene lot %q: quad has %d values, want 8", l.ID, len(l.Quad))
		}
		var q [8]float64
		copy(q[:], l.Quad)
		s.Lots = append(s.Lots, SceneLot{ID: l.ID, Quad: q})
		s.Occupancy.AddBucket(l.ID)
		s.Difficult.AddBucket(l.ID)
	}
	for id, entries := range doc.Scenes {
		s.Occupancy.AddBucket(id)
		for _, e := range entries {
			if err := s.Occupancy.Insert(id, e.Frame, e.Label, e.Flags...); err != nil {
				return nil, fmt.Errorf("scene lot %q: %w", id, err)
			}
		}
	}
	for id, entries := range doc.DifficultFrames {
		s.Difficult.AddBucket(id)
		for _, e := range entries {
			if err := s.Difficult.Insert(id, e.Frame, e.Label); err != nil {
				return nil, fmt.Errorf("difficult frames %q: %w", id, err)
			}
		}
	}
	// Lots without difficult_frames in a 0.2 file get an empty bucket above.
	s.Occupancy.MarkClean()
	s.Difficult.MarkClean()
	return s, nil
}

// EncodeScene renders s in the current scene file version.
func EncodeScene(s *Scene) ([]byte, error) {
	doc := sceneV3{
		Version:         CurrentVersion,
		VideoPath:       s.VideoPath,
		Lots:            make([]sceneLotJSON, 0, len(s.Lots)),
		Scenes:          make(map[string][]occupancyJSON),
		DifficultFrames: make(map[string][]difficultJSON),
	}
	for _, l := range s.Lots {
		doc.Lots = append(doc.Lots, sceneLotJSON{ID: l.ID, Quad: append([]float64(nil), l.Quad[:]...)})
	}
	for _, id := range s.Occupancy.Buckets() {
		entries := make([]occupancyJSON, 0, s.Occupancy.Len(id))
		for _, e := range s.Occupancy.Entries(id) {
			entries = append(entries, occupancyJSON{Label: e.Label, Frame: e.Frame, Flags: e.Flags})
		}
		doc.Scenes[id] = entries
	}
	for _, id := range s.Difficult.Buckets() {
		entries := make([]difficultJSON, 0, s.Difficult.Len(id))
		for _, e := range s.Difficult.Entries(id) {
			entries = append(entries, difficultJSON{Label: e.Label, Frame: e.Frame})
		}
		doc.DifficultFrames[id] = entries
	}
	return json.MarshalIndent(doc, "", "    ")
}

// ReadScene loads a scene file.
func ReadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := DecodeScene(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteScene saves s to path and clears its dirty state.
func WriteScene(path string, s *Scene) error {
	data, err := EncodeScene(s)
	if err != nil {
		return err
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to save scene to %s: %w", path, err)
	}
	s.Occupancy.MarkClean()
	s.Difficult.MarkClean()
	return nil
}
