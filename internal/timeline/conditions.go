package timeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/lotannot/internal/types"
)

// Condition axes.
const (
	AxisWeather = "weather"
	AxisTime    = "time"
)

// ClockLayout is the hh:mm:ss form used by the time fields.
const ClockLayout = "15:04:05"

// Phase is the part of the day derived from the clock.
type Phase string

const (
	PhaseDay   Phase = "day"
	PhaseNight Phase = "night"
)

var ErrClockUnset = errors.New("initial time or interval not set")

// Interval is the number of seconds between extracted frames. Files carry it
// as a string, a number, or null.
type Interval int

func (iv *Interval) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*iv = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			*iv = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("interval %q: %w", s, err)
		}
		*iv = Interval(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("interval must be a string or number: %s", data)
	}
	*iv = Interval(f)
	return nil
}

func (iv Interval) MarshalJSON() ([]byte, error) {
	if iv == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(strconv.Itoa(int(iv)))
}

// Conditions is the in-memory form of a conditions file. Each axis is a
// bucket of Axes, so a frame carries at most one value per axis.
type Conditions struct {
	VideoPath      string
	Axes           *Timeline
	InitialTime    string
	DayStartTime   string
	NightStartTime string
	Interval       Interval

	dirty bool
}

// NewConditions returns an empty conditions document with the weather and
// time axes.
func NewConditions(videoPath string, interval int) *Conditions {
	return &Conditions{VideoPath: videoPath, Axes: New(AxisWeather, AxisTime), Interval: Interval(interval)}
}

// Dirty reports unsaved edits.
func (c *Conditions) Dirty() bool { return c.dirty || c.Axes.Dirty() }

// SetLabel records value for axis at frame. A second value for the same axis
// and frame is rejected with ErrFrameExists.
func (c *Conditions) SetLabel(axis, frame, value string) error {
	c.Axes.AddBucket(axis)
	return c.Axes.Insert(axis, frame, value)
}

// LabelAt is the step-function value of axis at frame.
func (c *Conditions) LabelAt(axis, frame string) (string, bool) {
	return c.Axes.Label(axis, frame)
}

// SetTimes updates the clock fields. Empty strings clear them.
func (c *Conditions) SetTimes(initial, dayStart, nightStart string) error {
	for _, v := range []string{initial, dayStart, nightStart} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(ClockLayout, v); err != nil {
			return fmt.Errorf("time %q must be hh:mm:ss: %w", v, err)
		}
	}
	c.InitialTime, c.DayStartTime, c.NightStartTime = initial, dayStart, nightStart
	c.dirty = true
	return nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

func (c *Conditions) clock(frame string) (time.Duration, error) {
	if c.InitialTime == "" || c.Interval <= 0 {
		return 0, ErrClockUnset
	}
	idx, err := types.ParseFrameKey(frame)
	if err != nil {
		return 0, err
	}
	start, err := parseClock(c.InitialTime)
	if err != nil {
		return 0, fmt.Errorf("initial time: %w", err)
	}
	d := start + time.Duration(idx)*time.Duration(c.Interval)*time.Second
	return d % (24 * time.Hour), nil
}

// ClockAt is the wall-clock time of frame, wrapping at midnight.
func (c *Conditions) ClockAt(frame string) (string, error) {
	d, err := c.clock(frame)
	if err != nil {
		return "", err
	}
	return time.Time{}.Add(d).Format(ClockLayout), nil
}

// PhaseAt reports whether frame falls between the day and night start times.
func (c *Conditions) PhaseAt(frame string) (Phase, error) {
	d, err := c.clock(frame)
	if err != nil {
		return "", err
	}
	if c.DayStartTime == "" || c.NightStartTime == "" {
		return "", ErrClockUnset
	}
	day, err := parseClock(c.DayStartTime)
	if err != nil {
		return "", fmt.Errorf("day start time: %w", err)
	}
	night, err := parseClock(c.NightStartTime)
	if err != nil {
		return "", fmt.Errorf("night start time: %w", err)
	}
	var isDay bool
	if day <= night {
		isDay = d >= day && d < night
	} else {
		isDay = d >= day || d < night
	}
	if isDay {
		return PhaseDay, nil
	}
	return PhaseNight, nil
}

// Row is every axis value recorded at one frame.
type Row struct {
	Frame  string
	Labels map[string]string
}

// Rows merges the axes back into per-frame rows sorted by frame.
func (c *Conditions) Rows() []Row {
	byFrame := make(map[string]map[string]string)
	for _, axis := range c.Axes.Buckets() {
		for _, e := range c.Axes.Entries(axis) {
			labels, ok := byFrame[e.Frame]
			if !ok {
				labels = make(map[string]string)
				byFrame[e.Frame] = labels
			}
			labels[axis] = e.Label
		}
	}
	rows := make([]Row, 0, len(byFrame))
	for frame, labels := range byFrame {
		rows = append(rows, Row{Frame: frame, Labels: labels})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Frame < rows[j].Frame })
	return rows
}

// conditionJSON holds either shape of a conditions entry: the legacy
// {frame,label} form or the {frame,labels} form. Files of any version may
// mix them, so each entry is upgraded on its own.
type conditionJSON struct {
	Frame  string            `json:"frame"`
	Label  *string           `json:"label,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// labels returns the per-axis values of the entry, mapping a legacy label
// onto the weather axis.
func (c conditionJSON) labels() (map[string]string, error) {
	switch {
	case c.Labels != nil:
		return c.Labels, nil
	case c.Label != nil:
		return map[string]string{AxisWeather: *c.Label}, nil
	default:
		return nil, fmt.Errorf("condition at %q has neither label nor labels", c.Frame)
	}
}

type conditionsFile struct {
	Version        string          `json:"version"`
	VideoPath      string          `json:"video_path"`
	Conditions     []conditionJSON `json:"conditions"`
	InitialTime    *string         `json:"initial_time"`
	DayStartTime   *string         `json:"day_start_time"`
	NightStartTime *string         `json:"night_start_time"`
	Interval       Interval        `json:"interval"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DecodeConditions parses any supported conditions file version.
func DecodeConditions(data []byte) (*Conditions, error) {
	version, err := readVersion(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conditions file: %w", err)
	}
	switch version {
	case "0.1", "0.2", "0.3":
	default:
		return nil, unsupported("conditions", version)
	}
	var doc conditionsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse conditions file: %w", err)
	}

	c := &Conditions{
		VideoPath:      doc.VideoPath,
		Axes:           New(AxisWeather, AxisTime),
		InitialTime:    deref(doc.InitialTime),
		DayStartTime:   deref(doc.DayStartTime),
		NightStartTime: deref(doc.NightStartTime),
		Interval:       doc.Interval,
	}
	for _, row := range doc.Conditions {
		labels, err := row.labels()
		if err != nil {
			return nil, fmt.Errorf("failed to parse conditions file: %w", err)
		}
		for axis, value := range labels {
			if err := c.SetLabel(axis, row.Frame, value); err != nil {
				return nil, fmt.Errorf("condition %q: %w", axis, err)
			}
		}
	}
	c.Axes.MarkClean()
	return c, nil
}

// EncodeConditions renders c in the current conditions file version.
func EncodeConditions(c *Conditions) ([]byte, error) {
	doc := conditionsFile{
		Version:        CurrentVersion,
		VideoPath:      c.VideoPath,
		Conditions:     []conditionJSON{},
		InitialTime:    nullable(c.InitialTime),
		DayStartTime:   nullable(c.DayStartTime),
		NightStartTime: nullable(c.NightStartTime),
		Interval:       c.Interval,
	}
	for _, r := range c.Rows() {
		doc.Conditions = append(doc.Conditions, conditionJSON{Frame: r.Frame, Labels: r.Labels})
	}
	return json.MarshalIndent(doc, "", "    ")
}

// ReadConditions loads a conditions file.
func ReadConditions(path string) (*Conditions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := DecodeConditions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// WriteConditions saves c to path and clears its dirty state.
func WriteConditions(path string, c *Conditions) error {
	data, err := EncodeConditions(c)
	if err != nil {
		return err
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to save conditions to %s: %w", path, err)
	}
	c.dirty = false
	c.Axes.MarkClean()
	return nil
}
