package crop

import (
	"context"
	"math/rand"

	"github.com/ironsheep/fitset/internal/logging"
	"github.com/ironsheep/fitset/internal/partition"
)

// RunDir builds the corpus from the VOC files in annotationDir, splits it
// with ratio and rng, and crops both subsets.
func (c *Cropper) RunDir(ctx context.Context, annotationDir string, ratio float64, rng *rand.Rand) (*Report, error) {
	logger := logging.OrDiscard(c.Logger)

	corpus, err := partition.BuildCorpus(annotationDir, logger)
	if err != nil {
		return nil, err
	}

	split, err := partition.SplitCorpus(corpus, ratio, rng)
	if err != nil {
		return nil, err
	}

	logger.Info("corpus split",
		"samples", corpus.Total(),
		"train", split.Train.Total(),
		"val", split.Val.Total())

	return c.Run(ctx, split)
}
