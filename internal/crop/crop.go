// Package crop writes one padded image patch per annotated region into a
// per-split, per-category directory tree for classifier training:
//
//	<root>/<split>/<label>/<source_basename>_<label>.jpg
//
// The second and later regions of the same category in one source image get
// a _<n> suffix before the extension.
package crop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/geometry"
	"github.com/ironsheep/fitset/internal/imaging"
	"github.com/ironsheep/fitset/internal/logging"
	"github.com/ironsheep/fitset/internal/partition"
	"github.com/ironsheep/fitset/internal/progress"
)

// Split directory names.
const (
	SplitTrain = "train"
	SplitVal   = "val"
)

// Skip reasons reported in Report.Skipped.
const (
	ReasonMissingImage    = "missing_image"
	ReasonCorruptedImage  = "corrupted_image"
	ReasonInvalidGeometry = "invalid_geometry"
	ReasonWriteFailed     = "write_failed"
)

// DefaultPadding is the fraction of box size added on each side.
const DefaultPadding = 0.15

// Cropper crops samples out of their source images.
type Cropper struct {
	// Padding is the fraction of each box's width and height added on every
	// side before cropping.
	Padding float64

	// OutputRoot is the directory holding the train and val trees.
	OutputRoot string

	// Workers bounds the number of concurrent crops. Zero means NumCPU.
	Workers int

	// Quality is the JPEG quality. Zero means imaging.DefaultJPEGQuality.
	Quality int

	// Cache holds decoded source images. A fresh cache is used when nil.
	Cache *imaging.ImageCache

	Logger *slog.Logger

	// Progress receives a progress bar when non-nil.
	Progress io.Writer
}

// Job is one crop with its output path already decided.
type Job struct {
	Sample partition.Sample
	Split  string
	Output string
}

// Report summarises a Run.
type Report struct {
	// Written is the number of crops saved.
	Written int `json:"written"`

	// Skipped counts samples that were not written, by reason.
	Skipped map[string]int `json:"skipped"`

	// PerSplit counts written crops per split and category label.
	PerSplit map[string]map[string]int `json:"per_split"`
}

func newReport() *Report {
	return &Report{
		Skipped:  make(map[string]int),
		PerSplit: make(map[string]map[string]int),
	}
}

// Prepare creates <root>/<split>/<label> for both splits and every category.
func (c *Cropper) Prepare() error {
	for _, split := range []string{SplitTrain, SplitVal} {
		for _, cat := range annotation.Categories() {
			dir := filepath.Join(c.OutputRoot, split, cat.Label())
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
	}
	return nil
}

// Plan assigns an output path to every sample of split. Train samples come
// first, then val; within a split categories follow class-id order and
// samples keep their corpus order. Paths are unique across the plan.
func (c *Cropper) Plan(split partition.Split) []Job {
	var jobs []Job
	seen := make(map[string]int)

	add := func(name string, corpus partition.Corpus) {
		for _, cat := range annotation.Categories() {
			for _, s := range corpus[cat] {
				label := cat.Label()
				base := filepath.Base(s.ImagePath) + "_" + label
				dir := filepath.Join(c.OutputRoot, name, label)

				key := filepath.Join(dir, base)
				seen[key]++
				if n := seen[key]; n > 1 {
					base += "_" + strconv.Itoa(n)
				}

				jobs = append(jobs, Job{
					Sample: s,
					Split:  name,
					Output: filepath.Join(dir, base+".jpg"),
				})
			}
		}
	}

	add(SplitTrain, split.Train)
	add(SplitVal, split.Val)
	return jobs
}

// CropSample pads the sample's box against the real image size, crops it
// and saves it to output.
func (c *Cropper) CropSample(sample partition.Sample, output string) error {
	img, err := c.cache().Load(sample.ImagePath)
	if err != nil {
		return err
	}

	box, err := geometry.Adjust(sample.Annotation.Box, img.Bounds().Size(), c.Padding)
	if err != nil {
		return err
	}

	patch, err := imaging.CropBox(img, box)
	if err != nil {
		return err
	}

	return imaging.SaveJPEG(patch, output, c.Quality)
}

// Run prepares the output tree and crops every sample of split with a
// bounded worker pool. Per-sample failures are logged and counted in the
// report; only a failure to prepare the tree or a cancelled ctx is returned.
func (c *Cropper) Run(ctx context.Context, split partition.Split) (*Report, error) {
	logger := logging.OrDiscard(c.Logger)

	if err := c.Prepare(); err != nil {
		return nil, err
	}

	jobs := c.Plan(split)
	report := newReport()
	cache := c.cache()
	refs := newRefCounter(jobs)

	var mu sync.Mutex
	bar := progress.New(c.Progress, len(jobs), "Cropping regions", logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())

	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			err := c.CropSample(job.Sample, job.Output)
			if refs.release(job.Sample.ImagePath) {
				cache.Evict(job.Sample.ImagePath)
			}

			mu.Lock()
			defer mu.Unlock()
			defer bar.Add()

			if err != nil {
				reason := skipReason(err)
				report.Skipped[reason]++
				logger.Warn("skipping region",
					"image", job.Sample.ImagePath,
					"category", job.Sample.Annotation.Category.Label(),
					"box", job.Sample.Annotation.Box.String(),
					"reason", reason,
					"error", err)
				return nil
			}

			report.Written++
			perSplit := report.PerSplit[job.Split]
			if perSplit == nil {
				perSplit = make(map[string]int)
				report.PerSplit[job.Split] = perSplit
			}
			perSplit[job.Sample.Annotation.Category.Label()]++
			return nil
		})
	}

	err := g.Wait()
	bar.Finish()
	if err != nil {
		return report, err
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}

	logger.Info("cropping complete", "written", report.Written, "skipped", report.Skipped)
	return report, nil
}

func (c *Cropper) cache() *imaging.ImageCache {
	if c.Cache == nil {
		c.Cache = imaging.NewImageCache()
	}
	return c.Cache
}

func (c *Cropper) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}

func skipReason(err error) string {
	switch {
	case imaging.IsNotExist(err):
		return ReasonMissingImage
	case errors.Is(err, imaging.ErrCorruptedImage):
		return ReasonCorruptedImage
	case errors.Is(err, geometry.ErrInvalidGeometry):
		return ReasonInvalidGeometry
	default:
		return ReasonWriteFailed
	}
}

// refCounter tracks how many pending jobs still need each source image.
type refCounter struct {
	mu   sync.Mutex
	refs map[string]int
}

func newRefCounter(jobs []Job) *refCounter {
	refs := make(map[string]int)
	for _, j := range jobs {
		refs[j.Sample.ImagePath]++
	}
	return &refCounter{refs: refs}
}

// release drops one reference and reports whether it was the last.
func (r *refCounter) release(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refs[path]--
	return r.refs[path] <= 0
}
