package imaging

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/fitset/internal/geometry"
)

// DefaultJPEGQuality is used by SaveJPEG when quality is out of range.
const DefaultJPEGQuality = 95

// CropBox extracts box from img. The box is in image coordinates and must
// lie inside img's bounds.
func CropBox(img image.Image, box geometry.Box) (*image.NRGBA, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	rect := box.Rect().Add(bounds.Min)
	if !rect.In(bounds) {
		return nil, fmt.Errorf("%w: crop region %s outside image bounds %dx%d",
			geometry.ErrInvalidGeometry, box, bounds.Dx(), bounds.Dy())
	}

	return imaging.Crop(img, rect), nil
}

// SaveJPEG writes img to path as JPEG, creating parent directories.
func SaveJPEG(img image.Image, path string, quality int) error {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(quality)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
