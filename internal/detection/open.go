package detection

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type nopCloser struct {
	Detector
}

func (nopCloser) Close() error { return nil }

// Unwrap returns the wrapped Detector.
func (n nopCloser) Unwrap() Detector { return n.Detector }

// NopCloser wraps a Detector that holds no resources.
func NopCloser(d Detector) DetectCloser {
	return nopCloser{d}
}

// Open picks a backend from source:
//
//	http://... or https://...   HTTPDetector
//	*.onnx                      ONNX model (gocv builds only)
//	directory                   LabelDir of prediction files
func Open(source string, opts ONNXOptions) (DetectCloser, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return NopCloser(&HTTPDetector{Endpoint: source}), nil
	case strings.EqualFold(filepath.Ext(source), ".onnx"):
		return NewONNX(source, opts)
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("detector source %q: %w", source, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("detector source %q: not a directory, URL or .onnx model", source)
	}
	return NopCloser(&LabelDir{Dir: source}), nil
}
