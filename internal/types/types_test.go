package types

import "testing"

func TestFrameKey(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "00000"},
		{7, "00007"},
		{12345, "12345"},
	}
	for _, tt := range tests {
		if got := FrameKey(tt.index); got != tt.want {
			t.Errorf("FrameKey(%d) = %q, want %q", tt.index, got, tt.want)
		}
	}
	if got := FrameFileName(42); got != "00042.jpg" {
		t.Errorf("FrameFileName(42) = %q", got)
	}
}

func TestParseFrameKey(t *testing.T) {
	tests := []struct {
		key     string
		want    int
		wantErr bool
	}{
		{"00000", 0, false},
		{"00030", 30, false},
		{"0030", 0, true},
		{"000030", 0, true},
		{"00a30", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseFrameKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrameKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrameKey(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestLexicographicEqualsNumeric(t *testing.T) {
	for a := 0; a < 200; a += 7 {
		for b := 0; b < 200; b += 11 {
			if (FrameKey(a) < FrameKey(b)) != (a < b) {
				t.Fatalf("ordering mismatch for %d and %d", a, b)
			}
		}
	}
}

func TestFrameKeyFromPath(t *testing.T) {
	key, err := FrameKeyFromPath("/data/raw/00042.jpg")
	if err != nil || key != "00042" {
		t.Errorf("got %q, %v", key, err)
	}
	if _, err := FrameKeyFromPath("/data/raw/frame.jpg"); err == nil {
		t.Error("expected error for non-numeric frame name")
	}
	if _, err := FrameKeyFromPath("/data/raw/00042.png"); err == nil {
		t.Error("expected error for wrong extension")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 100, 0},
		{40, 100, 40},
		{99, 100, 99},
		{100, 100, 100},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.done, tt.total); got != tt.want {
			t.Errorf("Percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	if OutcomeFinished.String() != "finished" || OutcomeCanceled.String() != "canceled" {
		t.Error("unexpected outcome names")
	}
}
