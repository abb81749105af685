package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"path/filepath"

	"github.com/ironsheep/fitset/internal/annotation"
	"github.com/ironsheep/fitset/internal/convert"
	"github.com/ironsheep/fitset/internal/crop"
	"github.com/ironsheep/fitset/internal/curate"
	"github.com/ironsheep/fitset/internal/detection"
	"github.com/ironsheep/fitset/internal/evaluate"
	"github.com/ironsheep/fitset/internal/geometry"
	"github.com/ironsheep/fitset/internal/imaging"
	"github.com/ironsheep/fitset/internal/partition"
)

// errNoStore reports a run query without a configured database.
var errNoStore = errors.New("no evaluation database configured")

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "dataset_crop").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	switch name {
	case "image_info":
		return s.handleImageInfo(args)
	case "annotation_parse":
		return s.handleAnnotationParse(args)
	case "box_adjust":
		return s.handleBoxAdjust(args)

	case "dataset_convert":
		return s.handleDatasetConvert(args)
	case "dataset_split":
		return s.handleDatasetSplit(args)
	case "dataset_crop":
		return s.handleDatasetCrop(ctx, args)
	case "dataset_verify":
		return s.handleDatasetVerify(ctx, args)
	case "dataset_curate":
		return s.handleDatasetCurate(ctx, args)

	case "detector_evaluate":
		return s.handleDetectorEvaluate(ctx, args)
	case "evaluation_runs":
		return s.handleEvaluationRuns(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func required(fields map[string]string) error {
	for name, v := range fields {
		if v == "" {
			return fmt.Errorf("missing required argument: %s", name)
		}
	}
	return nil
}

// === Image and annotation handlers ===

type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"path": a.Path}); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(a.Path)
}

type annotationParseResult struct {
	*annotation.Document
	Annotations []annotationView `json:"annotations"`
}

type annotationView struct {
	Category string       `json:"category"`
	ClassID  int          `json:"class_id"`
	Box      geometry.Box `json:"box"`
}

func (s *Server) handleAnnotationParse(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"path": a.Path}); err != nil {
		return nil, err
	}

	doc, err := annotation.ParseFile(a.Path, s.logger)
	if err != nil {
		return nil, err
	}

	anns := doc.Annotations(s.logger)
	views := make([]annotationView, len(anns))
	for i, ann := range anns {
		views[i] = annotationView{
			Category: ann.Category.Label(),
			ClassID:  ann.Category.ClassID(),
			Box:      ann.Box,
		}
	}
	return annotationParseResult{Document: doc, Annotations: views}, nil
}

type boxAdjustArgs struct {
	XMin    int      `json:"xmin"`
	YMin    int      `json:"ymin"`
	XMax    int      `json:"xmax"`
	YMax    int      `json:"ymax"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Padding *float64 `json:"padding"`
}

func (s *Server) handleBoxAdjust(args json.RawMessage) (interface{}, error) {
	var a boxAdjustArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	padding := s.cfg.Padding
	if a.Padding != nil {
		padding = *a.Padding
	}
	box := geometry.Box{XMin: a.XMin, YMin: a.YMin, XMax: a.XMax, YMax: a.YMax}
	return geometry.Adjust(box, image.Pt(a.Width, a.Height), padding)
}

// === Dataset handlers ===

type datasetConvertArgs struct {
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
}

func (s *Server) handleDatasetConvert(args json.RawMessage) (interface{}, error) {
	var a datasetConvertArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"input_dir": a.InputDir, "output_dir": a.OutputDir}); err != nil {
		return nil, err
	}
	c := &convert.Converter{OutputDir: a.OutputDir, Logger: s.logger}
	return c.ConvertDir(a.InputDir)
}

type splitArgs struct {
	Ratio *float64 `json:"ratio"`
	Seed  *int64   `json:"seed"`
}

func (s *Server) splitParams(a splitArgs) (float64, int64) {
	ratio, seed := s.cfg.Split.Ratio, s.cfg.Split.Seed
	if a.Ratio != nil {
		ratio = *a.Ratio
	}
	if a.Seed != nil {
		seed = *a.Seed
	}
	return ratio, seed
}

type datasetSplitArgs struct {
	splitArgs
	ImageDir  string `json:"image_dir"`
	LabelDir  string `json:"label_dir"`
	OutputDir string `json:"output_dir"`
}

func (s *Server) handleDatasetSplit(args json.RawMessage) (interface{}, error) {
	var a datasetSplitArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"image_dir": a.ImageDir, "label_dir": a.LabelDir, "output_dir": a.OutputDir}); err != nil {
		return nil, err
	}
	ratio, seed := s.splitParams(a.splitArgs)
	return partition.SplitDetector(partition.DetectorSplit{
		ImageDir:  a.ImageDir,
		LabelDir:  a.LabelDir,
		OutputDir: a.OutputDir,
		Ratio:     ratio,
		Rand:      partition.NewRand(seed),
		Logger:    s.logger,
	})
}

type datasetCropArgs struct {
	splitArgs
	AnnotationDir string   `json:"annotation_dir"`
	OutputDir     string   `json:"output_dir"`
	Padding       *float64 `json:"padding"`
}

func (s *Server) handleDatasetCrop(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a datasetCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"annotation_dir": a.AnnotationDir, "output_dir": a.OutputDir}); err != nil {
		return nil, err
	}

	padding := s.cfg.Padding
	if a.Padding != nil {
		padding = *a.Padding
	}
	ratio, seed := s.splitParams(a.splitArgs)

	c := &crop.Cropper{
		Padding:    padding,
		OutputRoot: a.OutputDir,
		Workers:    s.cfg.Crop.Workers,
		Quality:    s.cfg.Crop.Quality,
		Cache:      s.cache,
		Logger:     s.logger,
	}
	return c.RunDir(ctx, a.AnnotationDir, ratio, partition.NewRand(seed))
}

type datasetVerifyArgs struct {
	Dir    string `json:"dir"`
	Remove bool   `json:"remove"`
}

func (s *Server) handleDatasetVerify(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a datasetVerifyArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"dir": a.Dir}); err != nil {
		return nil, err
	}
	if a.Remove {
		// removed files must not be served from the cache later
		s.cache.Clear()
	}
	return imaging.Verify(ctx, a.Dir, a.Remove, s.logger)
}

type datasetCurateArgs struct {
	Log           string `json:"log"`
	Predictions   string `json:"predictions"`
	ImageDir      string `json:"image_dir"`
	LabelDir      string `json:"label_dir"`
	OutputDir     string `json:"output_dir"`
	MinDetections *int   `json:"min_detections"`
}

func (s *Server) handleDatasetCurate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a datasetCurateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"image_dir": a.ImageDir, "label_dir": a.LabelDir, "output_dir": a.OutputDir}); err != nil {
		return nil, err
	}

	var (
		entries []curate.Entry
		err     error
	)
	switch {
	case a.Log != "":
		entries, err = curate.ParseLogFile(a.Log, s.logger)
	case a.Predictions != "":
		entries, err = curate.CountPredictions(a.Predictions)
	default:
		err = errors.New("one of log or predictions is required")
	}
	if err != nil {
		return nil, err
	}

	minDetections := s.cfg.Curate.MinDetections
	if a.MinDetections != nil {
		minDetections = *a.MinDetections
	}

	c := &curate.Curator{
		ImageDir:       a.ImageDir,
		LabelDir:       a.LabelDir,
		OutputImageDir: filepath.Join(a.OutputDir, "images"),
		OutputLabelDir: filepath.Join(a.OutputDir, "labels"),
		MinDetections:  minDetections,
		Logger:         s.logger,
	}
	return c.Run(ctx, entries)
}

// === Evaluation handlers ===

type detectorEvaluateArgs struct {
	ImageDir   string    `json:"image_dir"`
	Detector   string    `json:"detector"`
	Thresholds []float64 `json:"thresholds"`
	Save       *bool     `json:"save"`
}

type evaluationResult struct {
	RunID  string           `json:"run_id,omitempty"`
	Rows   []evaluate.Rates `json:"rows"`
	Best   *evaluate.Rates  `json:"best,omitempty"`
	Images int              `json:"images"`
	Failed int              `json:"failed"`
}

func (s *Server) handleDetectorEvaluate(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a detectorEvaluateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if err := required(map[string]string{"image_dir": a.ImageDir, "detector": a.Detector}); err != nil {
		return nil, err
	}
	thresholds := a.Thresholds
	if len(thresholds) == 0 {
		thresholds = s.cfg.Evaluate.Thresholds
	}

	det, err := detection.Open(a.Detector, detection.DefaultONNXOptions())
	if err != nil {
		return nil, err
	}
	defer det.Close()

	ev := &evaluate.Evaluator{Detector: det, Logger: s.logger}
	res, records, err := ev.Run(ctx, a.ImageDir, thresholds)
	if err != nil {
		return nil, err
	}

	out := evaluationResult{Rows: res.Rows(), Images: len(records)}
	for _, r := range records {
		if r.Error != "" {
			out.Failed++
		}
	}
	if best, ok := res.Best(); ok {
		out.Best = &best
	}

	if s.store != nil && (a.Save == nil || *a.Save) {
		run, err := s.store.SaveRun(ctx, a.ImageDir, a.Detector, res, records)
		if err != nil {
			return nil, err
		}
		out.RunID = run.ID
	}
	return out, nil
}

type evaluationRunsArgs struct {
	ID string `json:"id"`
}

func (s *Server) handleEvaluationRuns(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a evaluationRunsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, errNoStore
	}
	if a.ID == "" {
		return s.store.ListRuns(ctx)
	}

	run, err := s.store.GetRun(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	res, err := s.store.LoadResult(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"run":  run,
		"rows": res.Rows(),
	}, nil
}
