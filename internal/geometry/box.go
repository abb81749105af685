// Package geometry validates and pads pixel bounding boxes against image bounds.
//
// Boxes use the same convention as image.Rectangle: (XMin, YMin) is the
// inclusive top-left corner and (XMax, YMax) the exclusive bottom-right corner.
// A box is valid only when it has a strictly positive width and height.
package geometry

import (
	"errors"
	"fmt"
	"image"
)

// ErrInvalidGeometry reports a degenerate box, image size or padding.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Box is an axis-aligned bounding box in integer pixel coordinates.
type Box struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// Width returns XMax - XMin.
func (b Box) Width() int { return b.XMax - b.XMin }

// Height returns YMax - YMin.
func (b Box) Height() int { return b.YMax - b.YMin }

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

func (b Box) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Validate returns ErrInvalidGeometry when the box has no area.
func (b Box) Validate() error {
	if b.Width() <= 0 || b.Height() <= 0 {
		return fmt.Errorf("%w: box %s has width %d and height %d", ErrInvalidGeometry, b, b.Width(), b.Height())
	}
	return nil
}

// Adjust pads a box on every side by a fraction of its own size and clamps the
// result to the image.
//
// Parameters:
//   - box: the source box. Must have positive width and height.
//   - size: image width (X) and height (Y) in pixels. Both must be positive.
//   - padding: fraction of the box width/height added on each side (>= 0).
//
// The padding in pixels is floor(padding*width) horizontally and
// floor(padding*height) vertically. Every padded edge is clamped to [0,W] or
// [0,H], so a box lying partly outside the image is cut back to the image and
// a box lying wholly outside it collapses to an empty box on the border.
//
// The box is validated before any padding is computed, so a degenerate box is
// never hidden by clamping. Applying Adjust twice pads twice.
func Adjust(box Box, size image.Point, padding float64) (Box, error) {
	if err := box.Validate(); err != nil {
		return Box{}, err
	}
	if size.X <= 0 || size.Y <= 0 {
		return Box{}, fmt.Errorf("%w: image size %dx%d", ErrInvalidGeometry, size.X, size.Y)
	}
	if padding < 0 {
		return Box{}, fmt.Errorf("%w: negative padding %g", ErrInvalidGeometry, padding)
	}

	padW := int(padding * float64(box.Width()))
	padH := int(padding * float64(box.Height()))

	return Box{
		XMin: clamp(box.XMin-padW, 0, size.X),
		YMin: clamp(box.YMin-padH, 0, size.Y),
		XMax: clamp(box.XMax+padW, 0, size.X),
		YMax: clamp(box.YMax+padH, 0, size.Y),
	}, nil
}

// clamp constrains an integer value to the range [lo, hi].
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
