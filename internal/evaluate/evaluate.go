// Package evaluate scores a detector's fit/unfit decisions against ground
// truth encoded in image file names.
//
// An image is predicted Fit at threshold t when the detector found at least
// one region and the share of Normal regions is at least t. Ground truth is
// Unfit for names starting with "ab" and Fit for names starting with "no";
// other images are not scored.
//
// Per threshold the package reports
//
//	TPR = correctly predicted Unfit / all true Unfit
//	TNR = correctly predicted Fit   / all true Fit
//
// with 0 for an empty denominator.
package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/detection"
	"github.com/ironsheep/fitset/internal/logging"
	"github.com/ironsheep/fitset/internal/progress"
)

// ErrNoThresholds reports an empty or invalid threshold list.
var ErrNoThresholds = errors.New("at least one threshold in [0, 1] is required")

// Label is a fit/unfit decision, either ground truth or predicted.
type Label int

const (
	Unfit Label = iota
	Fit
)

func (l Label) String() string {
	switch l {
	case Fit:
		return "fit"
	case Unfit:
		return "unfit"
	default:
		return fmt.Sprintf("Label(%d)", int(l))
	}
}

// MarshalText encodes the label as "fit" or "unfit".
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Ground truth file name prefixes.
const (
	UnfitPrefix = "ab"
	FitPrefix   = "no"
)

// TrueLabelFor derives ground truth from the base name of path. ok is false
// for names matching neither prefix.
func TrueLabelFor(path string) (label Label, ok bool) {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, UnfitPrefix):
		return Unfit, true
	case strings.HasPrefix(name, FitPrefix):
		return Fit, true
	default:
		return 0, false
	}
}

// CountNormal returns how many of classIDs are the Normal category and how
// many there are in total.
func CountNormal(classIDs []int) (normal, total int) {
	target := annotation.Normal.ClassID()
	for _, id := range classIDs {
		if id == target {
			normal++
		}
	}
	return normal, len(classIDs)
}

// Classify decides Fit or Unfit for every threshold from one image's detected
// class ids. Zero detections is Unfit at every threshold.
func Classify(classIDs []int, thresholds []float64) map[float64]Label {
	normal, total := CountNormal(classIDs)
	out := make(map[float64]Label, len(thresholds))
	for _, t := range thresholds {
		out[t] = decide(normal, total, t)
	}
	return out
}

func decide(normal, total int, threshold float64) Label {
	if total > 0 && float64(normal)/float64(total) >= threshold {
		return Fit
	}
	return Unfit
}

// Record is one scored image.
type Record struct {
	ImageFile   string `json:"image_file"`
	TrueLabel   Label  `json:"true_label"`
	TotalBoxes  int    `json:"total_boxes"`
	NormalBoxes int    `json:"normal_boxes"`

	// Predicted is nil when the detector failed on the image. Such an image
	// still counts toward its true label's total but never as correct.
	Predicted map[float64]Label `json:"-"`

	Error string `json:"error,omitempty"`
}

// Rates holds the confusion counts and rates of one threshold.
type Rates struct {
	Threshold float64 `json:"threshold"`
	TPR       float64 `json:"tpr"`
	TNR       float64 `json:"tnr"`

	// TruePositive is the number of true Unfit images predicted Unfit.
	TruePositive int `json:"true_positive"`
	// TrueNegative is the number of true Fit images predicted Fit.
	TrueNegative int `json:"true_negative"`

	Unfit int `json:"unfit"`
	Fit   int `json:"fit"`
}

// J returns Youden's index TPR + TNR - 1.
func (r Rates) J() float64 {
	return r.TPR + r.TNR - 1
}

// Result is the evaluation outcome for a set of thresholds.
type Result struct {
	// Thresholds are in the order supplied, without duplicates.
	Thresholds []float64
	Rates      map[float64]Rates
}

// MarshalJSON encodes the result as its thresholds plus ascending rows.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Thresholds []float64 `json:"thresholds"`
		Rows       []Rates   `json:"rows"`
	}{r.Thresholds, r.Rows()})
}

// Rows returns the rates sorted by ascending threshold.
func (r Result) Rows() []Rates {
	ts := slices.Clone(r.Thresholds)
	slices.Sort(ts)
	rows := make([]Rates, 0, len(ts))
	for _, t := range ts {
		rows = append(rows, r.Rates[t])
	}
	return rows
}

// NormalizeThresholds drops duplicates while keeping the supplied order and
// rejects an empty list or values outside [0, 1].
func NormalizeThresholds(thresholds []float64) ([]float64, error) {
	if len(thresholds) == 0 {
		return nil, ErrNoThresholds
	}
	out := make([]float64, 0, len(thresholds))
	for _, t := range thresholds {
		if math.IsNaN(t) || t < 0 || t > 1 {
			return nil, fmt.Errorf("%w: got %g", ErrNoThresholds, t)
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Aggregate computes per-threshold rates over records. The same records are
// reused for every threshold.
func Aggregate(records []Record, thresholds []float64) Result {
	res := Result{
		Thresholds: thresholds,
		Rates:      make(map[float64]Rates, len(thresholds)),
	}

	var fit, unfit int
	for _, rec := range records {
		if rec.TrueLabel == Fit {
			fit++
		} else {
			unfit++
		}
	}

	for _, t := range thresholds {
		r := Rates{Threshold: t, Fit: fit, Unfit: unfit}
		for _, rec := range records {
			pred, ok := rec.Predicted[t]
			if !ok {
				continue
			}
			switch {
			case rec.TrueLabel == Unfit && pred == Unfit:
				r.TruePositive++
			case rec.TrueLabel == Fit && pred == Fit:
				r.TrueNegative++
			}
		}
		r.TPR = ratio(r.TruePositive, r.Unfit)
		r.TNR = ratio(r.TrueNegative, r.Fit)
		res.Rates[t] = r
	}
	return res
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Evaluator runs a detector over an image directory and scores it.
type Evaluator struct {
	Detector detection.Detector
	Logger   *slog.Logger

	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// Run detects every image in imageDir once and scores it at all thresholds.
// Images whose names carry no ground truth are logged and skipped. A
// detector failure on one image is logged and recorded; only a missing
// imageDir, bad thresholds or a cancelled ctx abort the run.
func (e *Evaluator) Run(ctx context.Context, imageDir string, thresholds []float64) (Result, []Record, error) {
	logger := logging.OrDiscard(e.Logger)

	thresholds, err := NormalizeThresholds(thresholds)
	if err != nil {
		return Result{}, nil, err
	}

	names, err := dataset.ListImages(imageDir)
	if err != nil {
		return Result{}, nil, err
	}

	bar := progress.New(e.Progress, len(names), "Evaluating images", logger)
	records := make([]Record, 0, len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return Result{}, records, err
		}
		bar.Add()

		truth, ok := TrueLabelFor(name)
		if !ok {
			logger.Warn("file name carries no ground truth, skipping", "image", name)
			continue
		}

		rec := Record{ImageFile: name, TrueLabel: truth}
		dets, err := e.Detector.Detect(ctx, filepath.Join(imageDir, name))
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, records, ctx.Err()
			}
			logger.Warn("detector failed", "image", name, "error", err)
			rec.Error = err.Error()
			records = append(records, rec)
			continue
		}

		ids := detection.ClassIDs(dets)
		rec.NormalBoxes, rec.TotalBoxes = CountNormal(ids)
		rec.Predicted = Classify(ids, thresholds)
		logger.Debug("scored image",
			"image", name,
			"truth", truth,
			"boxes", rec.TotalBoxes,
			"normal", rec.NormalBoxes)
		records = append(records, rec)
	}
	bar.Finish()

	result := Aggregate(records, thresholds)
	logger.Info("evaluation complete", "scored", len(records), "thresholds", len(thresholds))
	return result, records, nil
}
