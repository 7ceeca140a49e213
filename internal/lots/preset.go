package lots

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/lotannot/internal/geometry"
)

// PresetLot is a lot as a camera preset describes it.
type PresetLot struct {
	ID   string    `json:"id"`
	Quad []float64 `json:"quad"`
}

type preset struct {
	Cameras []struct {
		Name    string `json:"name"`
		Presets []struct {
			ConfigPreset struct {
				Lots []PresetLot `json:"lots"`
			} `json:"config_preset"`
		} `json:"presets"`
	} `json:"cameras"`
}

// Camera is the lot layout of one camera taken from its first preset.
type Camera struct {
	Name string
	Lots []PresetLot
}

// ParsePreset reads a camera preset export.
func ParsePreset(r io.Reader) ([]Camera, error) {
	var p preset
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse preset: %w", err)
	}
	out := make([]Camera, 0, len(p.Cameras))
	for _, c := range p.Cameras {
		if c.Name == "" {
			return nil, errors.New("preset camera without a name")
		}
		if !singleComponent(c.Name) {
			return nil, fmt.Errorf("preset camera name %q is not a valid file name", c.Name)
		}
		if len(c.Presets) == 0 {
			return nil, fmt.Errorf("camera %q has no presets", c.Name)
		}
		out = append(out, Camera{Name: c.Name, Lots: c.Presets[0].ConfigPreset.Lots})
	}
	return out, nil
}

// ImportPreset writes one lots file per camera into outDir, named after the
// camera. Every lot goes through AddLot so invalid quads are reported.
func ImportPreset(presetPath, outDir string) ([]string, error) {
	fh, err := os.Open(presetPath)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	cams, err := ParsePreset(fh)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	var written []string
	for _, c := range cams {
		s := New()
		for _, fl := range c.Lots {
			if len(fl.Quad) != 8 {
				return written, fmt.Errorf("camera %q lot %q: quad has %d values, want 8", c.Name, fl.ID, len(fl.Quad))
			}
			var flat [8]float64
			copy(flat[:], fl.Quad)
			if err := s.AddLot(fl.ID, geometry.QuadFromFlat(flat)); err != nil {
				return written, fmt.Errorf("camera %q: %w", c.Name, err)
			}
		}
		path := filepath.Join(outDir, c.Name+".json")
		if err := s.SaveAs(path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}
