package detection

// ONNXOptions configures the ONNX backend.
type ONNXOptions struct {
	// InputSize is the square network input edge in pixels.
	InputSize int

	// ScoreThreshold drops candidates whose best class score is lower.
	ScoreThreshold float32

	// NMSThreshold is the maximum IoU between two kept boxes.
	NMSThreshold float32
}

// DefaultONNXOptions matches a YOLOv8 export at 640 pixels.
func DefaultONNXOptions() ONNXOptions {
	return ONNXOptions{
		InputSize:      640,
		ScoreThreshold: 0.25,
		NMSThreshold:   0.45,
	}
}

func (o ONNXOptions) withDefaults() ONNXOptions {
	d := DefaultONNXOptions()
	if o.InputSize <= 0 {
		o.InputSize = d.InputSize
	}
	if o.ScoreThreshold <= 0 {
		o.ScoreThreshold = d.ScoreThreshold
	}
	if o.NMSThreshold <= 0 {
		o.NMSThreshold = d.NMSThreshold
	}
	return o
}
