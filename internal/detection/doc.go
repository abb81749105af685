// Package detection runs or reads the output of a trained region detector.
//
// Every backend implements Detector and reports boxes in pixel coordinates of
// the source image:
//
//   - LabelDir reads YOLO prediction files that a detector already wrote,
//     one <stem>.txt per image.
//   - HTTPDetector posts each image to an inference service.
//   - ONNX runs a YOLOv8 ONNX export through OpenCV DNN. It is only built
//     with the gocv build tag; without it NewONNX returns
//     ErrBackendUnavailable.
//
// # Label Lines
//
// Prediction files use the detector label format with an optional trailing
// confidence:
//
//	<class_id> <x_center> <y_center> <width> <height> [confidence]
//
// The four spatial fields are fractions of the image size.
package detection
