//go:build !gocv

package detection

import "fmt"

// NewONNX needs the gocv build tag.
func NewONNX(modelPath string, opts ONNXOptions) (DetectCloser, error) {
	return nil, fmt.Errorf("%w: onnx (%s); rebuild with -tags gocv", ErrBackendUnavailable, modelPath)
}
