package curate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/logging"
)

// ErrMismatchedCounts reports image and label directories holding different
// numbers of files. It is only ever logged.
var ErrMismatchedCounts = errors.New("image and label counts differ")

// DefaultMinDetections is the default selection bound.
const DefaultMinDetections = 5

// Select returns the entries whose total is strictly greater than
// minDetections, in input order.
func Select(entries []Entry, minDetections int) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Total > minDetections {
			out = append(out, e)
		}
	}
	return out
}

// Curator copies selected images and their label files.
type Curator struct {
	ImageDir       string
	LabelDir       string
	OutputImageDir string
	OutputLabelDir string
	MinDetections  int
	Logger         *slog.Logger
}

// Report summarises a curation run.
type Report struct {
	Entries    int      `json:"entries"`
	Selected   int      `json:"selected"`
	Copied     int      `json:"copied"`
	Missing    []string `json:"missing,omitempty"`
	Mismatched bool     `json:"mismatched"`
}

// Run selects entries above MinDetections and copies every selected image
// with its <stem>.txt label. Entries without a stem are matched to the
// sorted image listing by position. A selected image without an image file
// or a label file is logged and listed in Missing.
func (c *Curator) Run(ctx context.Context, entries []Entry) (*Report, error) {
	logger := logging.OrDiscard(c.Logger)

	images, err := dataset.ListImages(c.ImageDir)
	if err != nil {
		return nil, err
	}
	labels, err := dataset.ListFiles(c.LabelDir, dataset.HasExt(".txt"))
	if err != nil {
		return nil, err
	}

	report := &Report{Entries: len(entries)}
	if len(images) != len(labels) {
		report.Mismatched = true
		logger.Warn("pairing by stem",
			"error", fmt.Errorf("%w: %d images, %d labels", ErrMismatchedCounts, len(images), len(labels)))
	}

	for _, dir := range []string{c.OutputImageDir, c.OutputLabelDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	selected := Select(entries, c.MinDetections)
	report.Selected = len(selected)

	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		imagePath, ok := c.resolve(e, images)
		if !ok {
			logger.Warn("no image for entry", "index", e.Index, "stem", e.Stem, "line", e.Line)
			report.Missing = append(report.Missing, entryName(e))
			continue
		}
		stem := dataset.Stem(imagePath)
		labelPath := filepath.Join(c.LabelDir, stem+".txt")
		if _, err := os.Stat(labelPath); err != nil {
			logger.Warn("no label for image", "image", imagePath, "label", labelPath)
			report.Missing = append(report.Missing, stem)
			continue
		}

		if err := dataset.CopyFile(imagePath, filepath.Join(c.OutputImageDir, filepath.Base(imagePath))); err != nil {
			logger.Error("failed to copy image", "image", imagePath, "error", err)
			continue
		}
		if err := dataset.CopyFile(labelPath, filepath.Join(c.OutputLabelDir, stem+".txt")); err != nil {
			logger.Error("failed to copy label", "label", labelPath, "error", err)
			continue
		}
		report.Copied++
		logger.Debug("copied", "stem", stem, "detections", e.Total)
	}

	logger.Info("curation complete",
		"entries", report.Entries,
		"selected", report.Selected,
		"copied", report.Copied,
		"missing", len(report.Missing))
	return report, nil
}

func (c *Curator) resolve(e Entry, images []string) (string, bool) {
	if e.Stem != "" {
		return dataset.FindImage(c.ImageDir, e.Stem)
	}
	if e.Index < 0 || e.Index >= len(images) {
		return "", false
	}
	return filepath.Join(c.ImageDir, images[e.Index]), true
}

func entryName(e Entry) string {
	if e.Stem != "" {
		return e.Stem
	}
	return fmt.Sprintf("#%d", e.Index)
}
