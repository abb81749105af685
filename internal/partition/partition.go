// Package partition groups annotated samples by category and splits every
// group into train and validation subsets independently.
//
// Splitting per category keeps each category's share of the corpus the same
// in both subsets, which a single global shuffle cannot promise for rare
// categories.
package partition

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"
	"slices"
	"time"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/logging"
)

// ErrInvalidRatio reports a split ratio outside the open interval (0, 1).
var ErrInvalidRatio = errors.New("split ratio must be in (0, 1)")

// Sample is one labeled region of one source image.
type Sample struct {
	ImagePath  string                `json:"image_path"`
	Annotation annotation.Annotation `json:"annotation"`
}

// Corpus groups samples by category. Sample order within a category follows
// the order in which annotation files were scanned.
type Corpus map[annotation.Category][]Sample

// Counts returns the number of samples per category.
func (c Corpus) Counts() map[annotation.Category]int {
	out := make(map[annotation.Category]int, len(c))
	for cat, samples := range c {
		out[cat] = len(samples)
	}
	return out
}

// Total returns the number of samples across all categories.
func (c Corpus) Total() int {
	n := 0
	for _, samples := range c {
		n += len(samples)
	}
	return n
}

// Split is the result of partitioning a corpus.
type Split struct {
	Train Corpus `json:"train"`
	Val   Corpus `json:"val"`
}

// BuildCorpus scans dir for VOC annotation files that have an image with the
// same stem next to them and groups their regions by category.
//
// A missing dir is an error. Unreadable or malformed annotation files are
// logged and skipped, as are annotation files without an image.
func BuildCorpus(dir string, logger *slog.Logger) (Corpus, error) {
	logger = logging.OrDiscard(logger)

	names, err := dataset.ListFiles(dir, dataset.HasExt(".xml"))
	if err != nil {
		return nil, err
	}

	corpus := make(Corpus)
	for _, name := range names {
		stem := dataset.Stem(name)
		imagePath, ok := dataset.FindImage(dir, stem)
		if !ok {
			logger.Debug("annotation has no image", "annotation", name)
			continue
		}

		doc, err := annotation.ParseFile(filepath.Join(dir, name), logger)
		if err != nil {
			logger.Warn("skipping annotation file", "annotation", name, "error", err)
			continue
		}

		for _, a := range doc.Annotations(logger) {
			corpus[a.Category] = append(corpus[a.Category], Sample{ImagePath: imagePath, Annotation: a})
		}
	}

	return corpus, nil
}

// SplitCorpus shuffles every category of corpus independently with rng and puts the
// first floor(ratio*n) samples into Train and the rest into Val. A category
// with fewer than two samples goes entirely to Train.
//
// corpus is not modified. Categories are processed in class-id order, so the
// same rng seed and input always produce the same split.
func SplitCorpus(corpus Corpus, ratio float64, rng *rand.Rand) (Split, error) {
	train, val, err := SplitGroups(map[annotation.Category][]Sample(corpus), ratio, rng)
	if err != nil {
		return Split{}, err
	}
	return Split{Train: Corpus(train), Val: Corpus(val)}, nil
}

// SplitGroups is the generic form of SplitCorpus for any ordered group key.
func SplitGroups[K cmp.Ordered, V any](groups map[K][]V, ratio float64, rng *rand.Rand) (train, val map[K][]V, err error) {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, nil, fmt.Errorf("%w: got %g", ErrInvalidRatio, ratio)
	}
	if rng == nil {
		return nil, nil, errors.New("split requires a random source")
	}

	keys := make([]K, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	train = make(map[K][]V, len(groups))
	val = make(map[K][]V, len(groups))

	for _, k := range keys {
		items := slices.Clone(groups[k])
		rng.Shuffle(len(items), func(i, j int) {
			items[i], items[j] = items[j], items[i]
		})

		cut := TrainSize(len(items), ratio)
		train[k] = items[:cut:cut]
		val[k] = items[cut:]
	}

	return train, val, nil
}

// TrainSize returns how many of n items go to the training subset.
func TrainSize(n int, ratio float64) int {
	if n < 2 {
		return n
	}
	return int(float64(n) * ratio)
}

// NewRand returns a random source for Split. Seed 0 picks a time-based seed.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
