package timeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CurrentVersion is the schema version written for scene and conditions files.
const CurrentVersion = "0.3"

type header struct {
	Version string `json:"version"`
}

// readVersion extracts the version tag, treating a missing tag as "0.1".
func readVersion(data []byte) (string, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return "", err
	}
	if h.Version == "" {
		return "0.1", nil
	}
	return h.Version, nil
}

// writeFile replaces path with data through a temporary file in the same dir.
func writeFile(path string, data []byte) error {
	data = append(data, '\n')
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".timeline-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func unsupported(kind, version string) error {
	return fmt.Errorf("%w: %s file version %q", ErrUnsupportedVersion, kind, version)
}
