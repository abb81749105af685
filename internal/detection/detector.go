package detection

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ironsheep/fitset/internal/geometry"
)

var (
	// ErrBackendUnavailable reports a backend that was not compiled in.
	ErrBackendUnavailable = errors.New("detector backend not available in this build")

	// ErrMalformedLabel reports a prediction line that cannot be parsed.
	ErrMalformedLabel = errors.New("malformed label line")
)

// Detection is one detected region.
type Detection struct {
	ClassID    int          `json:"class_id"`
	Confidence float32      `json:"confidence"`
	Box        geometry.Box `json:"box"`
}

// Detector finds regions in one image.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]Detection, error)
}

// DetectCloser is a Detector holding resources that must be released.
type DetectCloser interface {
	Detector
	io.Closer
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, imagePath string) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	return f(ctx, imagePath)
}

// ClassIDs returns the class id of every detection in order.
func ClassIDs(dets []Detection) []int {
	ids := make([]int, len(dets))
	for i, d := range dets {
		ids[i] = d.ClassID
	}
	return ids
}

// LabelLine is one parsed prediction or ground-truth label line.
type LabelLine struct {
	ClassID int
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64

	// Confidence is 1 when the line has no confidence field.
	Confidence float32
}

// ParseLabelLine parses "<id> <xc> <yc> <w> <h> [conf]".
func ParseLabelLine(line string) (LabelLine, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return LabelLine{}, fmt.Errorf("%w: want 5 or 6 fields, got %d in %q", ErrMalformedLabel, len(fields), line)
	}

	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 {
		return LabelLine{}, fmt.Errorf("%w: class id %q", ErrMalformedLabel, fields[0])
	}

	var vals [5]float64
	vals[4] = 1
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return LabelLine{}, fmt.Errorf("%w: value %q", ErrMalformedLabel, f)
		}
		vals[i] = v
	}

	return LabelLine{
		ClassID:    id,
		XCenter:    vals[0],
		YCenter:    vals[1],
		Width:      vals[2],
		Height:     vals[3],
		Confidence: float32(vals[4]),
	}, nil
}

// Box converts the normalized line to pixel coordinates of an image of the
// given size, rounding to the nearest pixel and clamping to the image.
func (l LabelLine) Box(size image.Point) geometry.Box {
	w := float64(size.X)
	h := float64(size.Y)
	px := func(v, limit float64) int {
		return int(math.Round(math.Max(0, math.Min(limit, v))))
	}
	return geometry.Box{
		XMin: px((l.XCenter-l.Width/2)*w, w),
		YMin: px((l.YCenter-l.Height/2)*h, h),
		XMax: px((l.XCenter+l.Width/2)*w, w),
		YMax: px((l.YCenter+l.Height/2)*h, h),
	}
}

// ReadLabelFile parses every non-blank line of a label file. The first
// malformed line aborts with ErrMalformedLabel.
func ReadLabelFile(path string) ([]LabelLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open label file: %w", err)
	}
	defer f.Close()

	var lines []LabelLine
	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		l, err := ParseLabelLine(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, n, err)
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
