// Package server exposes the fitset pipeline as MCP (Model Context Protocol)
// tools over stdio.
//
// The server speaks JSON-RPC 2.0, one request per line on stdin and one
// response per line on stdout. Diagnostics go to the injected logger, never
// to stdout.
//
// Supported methods: initialize, tools/list, tools/call and ping.
//
// Tools:
//   - image_info: image header (size, format, bytes)
//   - annotation_parse: parse a VOC file and resolve categories
//   - box_adjust: pad and clamp a box against an image size
//   - dataset_convert: VOC directory to YOLO label files
//   - dataset_split: stratified detector train/val split with dataset.yaml
//   - dataset_crop: stratified classification crops
//   - dataset_verify: find (and optionally delete) undecodable images
//   - dataset_curate: keep images with many detections
//   - detector_evaluate: per-threshold TPR/TNR of a detector
//   - evaluation_runs: list stored evaluation runs
//
// Tool failures are JSON-RPC errors with code -32000 and the Go error string
// as data. Optional numeric arguments fall back to the loaded configuration.
package server
