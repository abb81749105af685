// Package imaging provides the image I/O used by the dataset pipeline:
// a concurrent decode cache, box cropping, JPEG output, an integrity sweep
// over image directories and an annotation overlay for visual review.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. A box covers the pixels
// from (XMin,YMin) inclusive to (XMax,YMax) exclusive.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. The remaining functions are
// stateless and may be called concurrently on different images.
//
// # Formats
//
// PNG, JPEG and GIF decoders come from the standard library; BMP, TIFF and
// WebP decoders are registered from golang.org/x/image. Every decode failure
// wraps ErrCorruptedImage so callers can tell an unreadable file from a
// missing one.
package imaging
