// Package convert turns VOC annotations into YOLO detector label files.
//
// A YOLO label file holds one line per region:
//
//	<class_id> <x_center> <y_center> <width> <height>
//
// where the four spatial fields are fractions of the image width and height.
// Label files that are already in this format are copied through unchanged.
package convert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/logging"
	"github.com/ironsheep/fitset/internal/progress"
)

// ErrInvalidDimensions reports a non-positive image width or height.
var ErrInvalidDimensions = errors.New("invalid image dimensions")

// ToDetectorLine formats one annotation as a YOLO label line without the
// trailing newline.
func ToDetectorLine(a annotation.Annotation, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if !a.Category.Valid() {
		return "", fmt.Errorf("unknown category %d", int(a.Category))
	}
	if err := a.Box.Validate(); err != nil {
		return "", err
	}

	w := float64(width)
	h := float64(height)
	b := a.Box

	fields := []float64{
		float64(b.XMin+b.XMax) / 2 / w,
		float64(b.YMin+b.YMax) / 2 / h,
		float64(b.Width()) / w,
		float64(b.Height()) / h,
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(a.Category.ClassID()))
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return sb.String(), nil
}

// Stats summarises a conversion run.
type Stats struct {
	// Converted is the number of annotation files turned into label files.
	Converted int `json:"converted"`

	// Copied is the number of existing label files copied through.
	Copied int `json:"copied"`

	// Failed is the number of files that could not be read or written.
	Failed int `json:"failed"`

	// Objects counts written label lines per category.
	Objects map[annotation.Category]int `json:"objects"`

	// Files counts label files containing at least one line of a category.
	Files map[annotation.Category]int `json:"files"`

	// Dropped counts regions left out for an unknown category or bad box.
	Dropped int `json:"dropped"`

	// Shadowed counts label files ignored because an annotation file with
	// the same stem was converted instead.
	Shadowed int `json:"shadowed"`
}

func newStats() *Stats {
	return &Stats{
		Objects: make(map[annotation.Category]int),
		Files:   make(map[annotation.Category]int),
	}
}

// Converter writes YOLO label files into OutputDir.
type Converter struct {
	OutputDir string
	Logger    *slog.Logger

	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// ConvertFile converts one VOC file to <OutputDir>/<stem>.txt and adds its
// counts to stats.
func (c *Converter) ConvertFile(xmlPath string, stats *Stats) error {
	logger := logging.OrDiscard(c.Logger)

	doc, err := annotation.ParseFile(xmlPath, logger)
	if err != nil {
		return err
	}

	if doc.Width <= 0 || doc.Height <= 0 {
		return fmt.Errorf("%s: %w: %dx%d", xmlPath, ErrInvalidDimensions, doc.Width, doc.Height)
	}

	anns := doc.Annotations(logger)
	stats.Dropped += len(doc.Objects) - len(anns)

	var lines []string
	seen := make(map[annotation.Category]bool)

	for _, a := range anns {
		line, err := ToDetectorLine(a, doc.Width, doc.Height)
		if err != nil {
			logger.Warn("dropping region",
				"source", xmlPath,
				"category", a.Category.Label(),
				"box", a.Box.String(),
				"error", err)
			stats.Dropped++
			continue
		}
		lines = append(lines, line)
		stats.Objects[a.Category]++
		seen[a.Category] = true
	}

	out := filepath.Join(c.OutputDir, dataset.Stem(xmlPath)+".txt")
	if err := writeLines(out, lines); err != nil {
		return err
	}

	for cat := range seen {
		stats.Files[cat]++
	}
	return nil
}

// ConvertDir converts every .xml file in inputDir and copies every .txt file
// through. A .txt file whose stem also has an .xml file is skipped in favour
// of the conversion. Per-file failures are logged and counted; only a missing
// input directory or an unwritable output directory is returned as an error.
func (c *Converter) ConvertDir(inputDir string) (*Stats, error) {
	logger := logging.OrDiscard(c.Logger)

	names, err := dataset.ListFiles(inputDir, func(name string) bool {
		ext := strings.ToLower(filepath.Ext(name))
		return ext == ".xml" || ext == ".txt"
	})
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	annotated := make(map[string]bool)
	for _, name := range names {
		if strings.EqualFold(filepath.Ext(name), ".xml") {
			annotated[dataset.Stem(name)] = true
		}
	}

	stats := newStats()
	bar := progress.New(c.Progress, len(names), "Converting annotations", logger)

	for _, name := range names {
		src := filepath.Join(inputDir, name)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xml":
			if err := c.ConvertFile(src, stats); err != nil {
				logger.Warn("failed to convert annotation", "source", src, "error", err)
				stats.Failed++
			} else {
				stats.Converted++
			}
		case ".txt":
			if annotated[dataset.Stem(name)] {
				logger.Warn("label file shadowed by annotation", "source", src, "annotation", dataset.Stem(name)+".xml")
				stats.Shadowed++
				break
			}
			if err := dataset.CopyFile(src, filepath.Join(c.OutputDir, name)); err != nil {
				logger.Warn("failed to copy label file", "source", src, "error", err)
				stats.Failed++
			} else {
				stats.Copied++
			}
		}
		bar.Add()
	}
	bar.Finish()

	logger.Info("conversion complete",
		"converted", stats.Converted,
		"copied", stats.Copied,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
		"shadowed", stats.Shadowed)

	return stats, nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create label file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write label file: %w", err)
	}
	return f.Close()
}
