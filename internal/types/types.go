package types

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// FrameWidth is the fixed number of digits in a frame key. Equal-width keys
// compare lexicographically in numeric order.
const FrameWidth = 5

// MaxFrameIndex is the largest index a frame key can hold.
const MaxFrameIndex = 99999

// FrameExt is the extension shared by raw frames and crop tiles.
const FrameExt = ".jpg"

// FrameKey formats a frame index as a zero-padded key, e.g. 7 -> "00007".
func FrameKey(index int) string {
	return fmt.Sprintf("%0*d", FrameWidth, index)
}

// FrameFileName returns the on-disk name of frame index, e.g. "00007.jpg".
func FrameFileName(index int) string {
	return FrameKey(index) + FrameExt
}

// ParseFrameKey validates a frame key and returns its numeric index.
func ParseFrameKey(key string) (int, error) {
	if len(key) != FrameWidth {
		return 0, fmt.Errorf("frame key %q must be %d digits", key, FrameWidth)
	}
	for _, r := range key {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("frame key %q must be decimal digits", key)
		}
	}
	return strconv.Atoi(key)
}

// IsFrameKey reports whether key is a valid frame key.
func IsFrameKey(key string) bool {
	_, err := ParseFrameKey(key)
	return err == nil
}

// FrameKeyFromPath turns ".../00042.jpg" into "00042".
func FrameKeyFromPath(path string) (string, error) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), FrameExt) {
		return "", fmt.Errorf("frame file %q is not a %s file", base, FrameExt)
	}
	key := strings.TrimSuffix(base, filepath.Ext(base))
	if _, err := ParseFrameKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// Outcome is the terminal, non-error result of a long-running job.
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ProgressFunc receives an integer percentage in [0,100].
type ProgressFunc func(percent int)

// Percent returns done/total as a whole percentage, truncated.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return done * 100 / total
}
