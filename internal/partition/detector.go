package partition

import (
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/detection"
	"github.com/ironsheep/fitset/internal/logging"
)

// EmptyGroup is the stratum of label files without any region.
const EmptyGroup = -1

// DetectorSplit configures SplitDetector.
type DetectorSplit struct {
	ImageDir  string
	LabelDir  string
	OutputDir string
	Ratio     float64
	Rand      *rand.Rand
	Logger    *slog.Logger
}

// DetectorReport summarises a detector dataset split.
type DetectorReport struct {
	Train     int         `json:"train"`
	Val       int         `json:"val"`
	Unmatched []string    `json:"unmatched,omitempty"`
	Failed    []string    `json:"failed,omitempty"`
	Groups    map[int]int `json:"groups"`
	Dataset   string      `json:"dataset"`
}

// DominantClass returns the class id occurring most often in lines, the
// lower id winning ties, or EmptyGroup when lines is empty.
func DominantClass(lines []detection.LabelLine) int {
	if len(lines) == 0 {
		return EmptyGroup
	}
	counts := make(map[int]int)
	for _, l := range lines {
		counts[l.ClassID]++
	}
	best, bestN := EmptyGroup, 0
	for id, n := range counts {
		if n > bestN || (n == bestN && id < best) {
			best, bestN = id, n
		}
	}
	return best
}

// SplitDetector pairs images with label files by stem, groups the pairs by
// dominant class and splits every group with SplitGroups. The pairs are
// copied into <out>/images/{train,val} and <out>/labels/{train,val}, which
// are cleared first, and <out>/dataset.yaml is written. A pair that cannot be
// copied is logged, left out of the output and listed in Failed.
func SplitDetector(cfg DetectorSplit) (*DetectorReport, error) {
	logger := logging.OrDiscard(cfg.Logger)

	pairs, unmatched, err := dataset.PairByStem(cfg.ImageDir, cfg.LabelDir)
	if err != nil {
		return nil, err
	}
	for _, name := range unmatched {
		logger.Warn("image has no label file", "image", name)
	}

	report := &DetectorReport{Unmatched: unmatched, Groups: make(map[int]int)}
	groups := make(map[int][]dataset.Pair)
	for _, p := range pairs {
		lines, err := detection.ReadLabelFile(p.Label)
		if err != nil {
			logger.Warn("skipping unreadable label file", "label", p.Label, "error", err)
			continue
		}
		g := DominantClass(lines)
		groups[g] = append(groups[g], p)
		report.Groups[g]++
	}

	train, val, err := SplitGroups(groups, cfg.Ratio, cfg.Rand)
	if err != nil {
		return nil, err
	}

	subsets := []struct {
		name   string
		groups map[int][]dataset.Pair
		count  *int
	}{
		{"train", train, &report.Train},
		{"val", val, &report.Val},
	}
	for _, s := range subsets {
		imgDir := filepath.Join(cfg.OutputDir, "images", s.name)
		lblDir := filepath.Join(cfg.OutputDir, "labels", s.name)
		if err := dataset.ClearDir(imgDir); err != nil {
			return nil, err
		}
		if err := dataset.ClearDir(lblDir); err != nil {
			return nil, err
		}
		for _, group := range s.groups {
			for _, p := range group {
				if err := copyPair(p, imgDir, lblDir); err != nil {
					logger.Error("failed to copy pair", "stem", p.Stem, "subset", s.name, "error", err)
					report.Failed = append(report.Failed, p.Stem)
					continue
				}
				*s.count++
			}
		}
	}

	sort.Strings(report.Failed)

	names := make([]string, 0, 4)
	for _, c := range annotation.Categories() {
		names = append(names, c.Label())
	}
	path, err := dataset.WriteDescriptor(dataset.NewDescriptor(cfg.OutputDir, names))
	if err != nil {
		return nil, err
	}
	report.Dataset = path

	logger.Info("detector split complete",
		"train", report.Train,
		"val", report.Val,
		"unmatched", len(unmatched),
		"failed", len(report.Failed),
		"dataset", path)
	return report, nil
}

// copyPair copies an image and its label, leaving neither behind on failure.
func copyPair(p dataset.Pair, imgDir, lblDir string) error {
	img := filepath.Join(imgDir, filepath.Base(p.Image))
	lbl := filepath.Join(lblDir, p.Stem+".txt")
	if err := dataset.CopyFile(p.Image, img); err != nil {
		_ = os.Remove(img)
		return err
	}
	if err := dataset.CopyFile(p.Label, lbl); err != nil {
		_ = os.Remove(img)
		_ = os.Remove(lbl)
		return err
	}
	return nil
}
