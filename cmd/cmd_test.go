package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/andresmejia3/lotannot/internal/geometry"
	"github.com/andresmejia3/lotannot/internal/lots"
	"github.com/andresmejia3/lotannot/internal/timeline"
)

func abort() lots.Decision { return lots.DecisionAbort }

func TestEditorScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lots.json")
	s := lots.New()
	s.SetPath(path)

	var out bytes.Buffer
	e := newEditor(s, &out, abort)
	defer e.close()

	script := strings.Join([]string{
		"tool draw",
		"id A1",
		"drag 10 10 110 60",
		"id A1",
		"drag 200 10 300 60", // duplicate id, rejected
		"# reshape and move with the plain pointer",
		"tool none",
		"drag 50 30 60 40",
		"drag 20 20 5 5",
		"image ref.jpg",
		"save",
	}, "\n")
	if err := e.run(strings.NewReader(script)); err != nil {
		t.Fatalf("script failed: %v", err)
	}

	if !strings.Contains(out.String(), "line 5") {
		t.Errorf("duplicate id should be reported on line 5, output:\n%s", out.String())
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 lot, got %d", s.Len())
	}
	l, _ := s.Lot(0)
	want := geometry.Quad{{X: 5, Y: 5}, {X: 120, Y: 20}, {X: 120, Y: 70}, {X: 20, Y: 70}}
	if l.Quad != want {
		t.Errorf("quad = %v, want %v", l.Quad, want)
	}

	doc, err := lots.ReadFile(path)
	if err != nil {
		t.Fatalf("saved file unreadable: %v", err)
	}
	if doc.ImagePath != "ref.jpg" || len(doc.Lots) != 1 || doc.Lots[0].ID != "A1" {
		t.Errorf("unexpected saved document: %+v", doc)
	}
}

func TestEditorRejectionsAndFailures(t *testing.T) {
	dir := t.TempDir()
	s := lots.New()
	s.SetPath(filepath.Join(dir, "lots.json"))
	var out bytes.Buffer
	e := newEditor(s, &out, func() lots.Decision { return lots.DecisionDiscard })
	defer e.close()

	// Rejections are reported and the script continues.
	script := "zoom 0\nfly 1 2\nmove 1\ntool draw\nid B1\ndrag 0 0 10 10\nload " + filepath.Join(dir, "other.json") + "\n"
	err := e.run(strings.NewReader(script))
	if err == nil {
		t.Fatal("expected the load of a missing file to stop the script")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if got := strings.Count(out.String(), "⚠️"); got != 3 {
		t.Errorf("expected 3 reported rejections, got %d:\n%s", got, out.String())
	}
	if s.Len() != 1 {
		t.Errorf("lot drawn before the failure should remain, got %d lots", s.Len())
	}
}

func TestEditorRejectsPathID(t *testing.T) {
	s := lots.New()
	var out bytes.Buffer
	e := newEditor(s, &out, func() lots.Decision { return lots.DecisionDiscard })
	defer e.close()

	if err := e.run(strings.NewReader("tool draw\nid ../x\ndrag 0 0 10 10\n")); err != nil {
		t.Fatalf("path id should be a rejection, got %v", err)
	}
	if s.Len() != 0 || !strings.Contains(out.String(), "single path component") {
		t.Errorf("expected rejected lot, got %d lots:\n%s", s.Len(), out.String())
	}
}

func TestEditorLoadAbortKeepsState(t *testing.T) {
	dir := t.TempDir()
	other := lots.New()
	if err := other.AddLot("X1", geometry.Quad{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}); err != nil {
		t.Fatal(err)
	}
	otherPath := filepath.Join(dir, "other.json")
	if err := other.SaveAs(otherPath); err != nil {
		t.Fatal(err)
	}

	s := lots.New()
	var out bytes.Buffer
	e := newEditor(s, &out, abort)
	defer e.close()

	script := "tool draw\nid A1\ndrag 0 0 10 10\nload " + otherPath + "\n"
	if err := e.run(strings.NewReader(script)); err != nil {
		t.Fatalf("aborted load is not a failure: %v", err)
	}
	if _, ok := s.Index("A1"); !ok || s.Len() != 1 {
		t.Error("aborted load must leave the store untouched")
	}
	if !strings.Contains(out.String(), lots.ErrLoadAborted.Error()) {
		t.Errorf("abort not reported:\n%s", out.String())
	}
}

func TestResolverFor(t *testing.T) {
	tests := []struct {
		policy string
		input  string
		want   lots.Decision
	}{
		{"save", "", lots.DecisionSave},
		{"discard", "", lots.DecisionDiscard},
		{"abort", "", lots.DecisionAbort},
		{"ask", "y\n", lots.DecisionSave},
		{"ask", "n\nyes\n", lots.DecisionDiscard},
		{"ask", "n\nn\n", lots.DecisionAbort},
		{"ask", "", lots.DecisionAbort},
	}
	for _, tt := range tests {
		t.Run(tt.policy+"/"+strings.ReplaceAll(tt.input, "\n", ","), func(t *testing.T) {
			r, err := resolverFor(tt.policy, bufio.NewReader(strings.NewReader(tt.input)), func() string { return "lots.json" })
			if err != nil {
				t.Fatal(err)
			}
			if got := r(); got != tt.want {
				t.Errorf("decision = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := resolverFor("maybe", nil, nil); err == nil {
		t.Error("unknown policy should be rejected")
	}
}

func TestFrameArg(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00042", "00042", false},
		{"42", "00042", false},
		{"0", "00000", false},
		{"99999", "99999", false},
		{"100000", "", true},
		{"-1", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		got, err := frameArg(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("frameArg(%q) = %q, %v", tt.in, got, err)
		}
		if err != nil && !errors.Is(err, timeline.ErrInvalidFrame) {
			t.Errorf("frameArg(%q) error should wrap ErrInvalidFrame: %v", tt.in, err)
		}
	}
}

func writeScene(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.json")
	s := timeline.NewScene("cam.mp4", []timeline.SceneLot{{ID: "A1", Quad: [8]float64{0, 0, 10, 0, 10, 10, 0, 10}}})
	if err := timeline.WriteScene(path, s); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEditSceneSavesOnlyOnSuccess(t *testing.T) {
	path := writeScene(t)

	if err := editScene(path, func(s *timeline.Scene) error {
		return s.Occupancy.Insert("A1", "00003", timeline.LabelBusy)
	}); err != nil {
		t.Fatal(err)
	}
	err := editScene(path, func(s *timeline.Scene) error {
		if err := s.Occupancy.Insert("A1", "00007", timeline.LabelFree); err != nil {
			return err
		}
		return s.Occupancy.Insert("A1", "00003", timeline.LabelFree)
	})
	if !errors.Is(err, timeline.ErrFrameExists) {
		t.Fatalf("expected ErrFrameExists, got %v", err)
	}

	s, err := timeline.ReadScene(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := s.Occupancy.Len("A1"); n != 1 {
		t.Errorf("failed edit must not be saved, got %d entries", n)
	}
}

func TestSceneLabelCommand(t *testing.T) {
	path := writeScene(t)
	rootCmd.SetArgs([]string{"scene", "label", path, "A1", "12", "busy", "--flag", "occluded",
		"--env-file", filepath.Join(t.TempDir(), "none.env")})
	defer func() { sceneFlags = nil }()
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("scene label failed: %v", err)
	}

	s, err := timeline.ReadScene(path)
	if err != nil {
		t.Fatal(err)
	}
	e, ok := s.Occupancy.At("A1", "00012")
	if !ok || e.Label != timeline.LabelBusy || !slices.Equal(e.Flags, []string{timeline.FlagOccluded}) {
		t.Errorf("unexpected entry: %+v (found %v)", e, ok)
	}
}

func TestCropDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"A1", "A2"} {
		if err := os.MkdirAll(filepath.Join(dir, "crops", d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "crops", "notes.txt"), nil, 0644)

	got, err := cropDirs(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "crops", "A1"), filepath.Join(dir, "crops", "A2")}
	if !slices.Equal(got, want) {
		t.Errorf("cropDirs = %v, want %v", got, want)
	}

	s := lots.New()
	s.AddLot("A2", geometry.Quad{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}})
	lotsPath := filepath.Join(dir, "lots.json")
	if err := s.SaveAs(lotsPath); err != nil {
		t.Fatal(err)
	}
	got, err = cropDirs(dir, lotsPath)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want[1:]) {
		t.Errorf("cropDirs with lots file = %v, want %v", got, want[1:])
	}

	if got, err := cropDirs(t.TempDir(), ""); err != nil || len(got) != 0 {
		t.Errorf("missing crops dir should be empty, got %v, %v", got, err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := confirm(bufio.NewReader(strings.NewReader(tt.input)), "sure?"); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
