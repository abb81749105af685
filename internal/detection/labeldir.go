package detection

import (
	"context"
	"errors"
	"image"
	"io/fs"
	"path/filepath"

	"github.com/ironsheep/fitset/internal/dataset"
	"github.com/ironsheep/fitset/internal/imaging"
)

// LabelDir serves detections from prediction files written by an earlier
// detector run: <Dir>/<stem>.txt for each image. An image without a
// prediction file has no detections.
type LabelDir struct {
	Dir string

	// MinConfidence drops lines whose confidence is below it.
	MinConfidence float32
}

// Detect implements Detector.
func (d *LabelDir) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines, err := ReadLabelFile(filepath.Join(d.Dir, dataset.Stem(imagePath)+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	info, err := imaging.LoadImageInfo(imagePath)
	if err != nil {
		return nil, err
	}
	size := image.Pt(info.Width, info.Height)

	dets := make([]Detection, 0, len(lines))
	for _, l := range lines {
		if l.Confidence < d.MinConfidence {
			continue
		}
		dets = append(dets, Detection{
			ClassID:    l.ClassID,
			Confidence: l.Confidence,
			Box:        l.Box(size),
		})
	}
	return dets, nil
}
