//go:build gocv

package detection

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ironsheep/fitset/internal/geometry"
)

// ONNX runs a YOLOv8 ONNX model through OpenCV DNN.
type ONNX struct {
	opts ONNXOptions

	mu  sync.Mutex
	net gocv.Net
}

// NewONNX loads the model at modelPath.
func NewONNX(modelPath string, opts ONNXOptions) (DetectCloser, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load onnx model %s", modelPath)
	}
	return &ONNX{opts: opts.withDefaults(), net: net}, nil
}

// Detect implements Detector. Calls are serialised on the network.
func (d *ONNX) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image %s", imagePath)
	}
	defer img.Close()

	size := d.opts.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	// output is [1, 4+classes, candidates]
	dims := out.Size()
	if len(dims) != 3 || dims[1] <= 4 {
		return nil, fmt.Errorf("unexpected onnx output shape %v", dims)
	}
	rows, candidates := dims[1], dims[2]

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read onnx output: %w", err)
	}

	sx := float32(img.Cols()) / float32(size)
	sy := float32(img.Rows()) / float32(size)

	var (
		rects   []image.Rectangle
		scores  []float32
		classes []int
	)
	for i := 0; i < candidates; i++ {
		best, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if s := data[c*candidates+i]; s > bestScore {
				best, bestScore = c-4, s
			}
		}
		if best < 0 || bestScore < d.opts.ScoreThreshold {
			continue
		}

		cx, cy := data[i]*sx, data[candidates+i]*sy
		w, h := data[2*candidates+i]*sx, data[3*candidates+i]*sy
		rects = append(rects, image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, bestScore)
		classes = append(classes, best)
	}

	if len(rects) == 0 {
		return nil, nil
	}

	keep := gocv.NMSBoxes(rects, scores, d.opts.ScoreThreshold, d.opts.NMSThreshold)
	bounds := image.Rect(0, 0, img.Cols(), img.Rows())

	dets := make([]Detection, 0, len(keep))
	for _, k := range keep {
		r := rects[k].Intersect(bounds)
		if r.Empty() {
			continue
		}
		dets = append(dets, Detection{
			ClassID:    classes[k],
			Confidence: scores[k],
			Box:        geometry.Box{XMin: r.Min.X, YMin: r.Min.Y, XMax: r.Max.X, YMax: r.Max.Y},
		})
	}
	return dets, nil
}

// Close releases the network.
func (d *ONNX) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
