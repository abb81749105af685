package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        typ,
		"description": description,
	}
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_info",
			Description: "Read an image header and return its width, height, format and file size.",
			InputSchema: object(map[string]interface{}{
				"path": prop("string", "Absolute path to the image file"),
			}, "path"),
		},
		{
			Name:        "annotation_parse",
			Description: "Parse a Pascal VOC annotation file. Returns the raw objects and the regions whose label is one of the fitness categories.",
			InputSchema: object(map[string]interface{}{
				"path": prop("string", "Absolute path to the .xml annotation"),
			}, "path"),
		},
		{
			Name:        "box_adjust",
			Description: "Pad a bounding box by a fraction of its size on every side and clamp it to the image.",
			InputSchema: object(map[string]interface{}{
				"xmin":    prop("integer", "Left edge"),
				"ymin":    prop("integer", "Top edge"),
				"xmax":    prop("integer", "Right edge (exclusive)"),
				"ymax":    prop("integer", "Bottom edge (exclusive)"),
				"width":   prop("integer", "Image width in pixels"),
				"height":  prop("integer", "Image height in pixels"),
				"padding": prop("number", "Padding fraction. Defaults to the configured padding"),
			}, "xmin", "ymin", "xmax", "ymax", "width", "height"),
		},
		{
			Name:        "dataset_convert",
			Description: "Convert every VOC annotation in a directory into YOLO label files. Existing .txt label files are copied through.",
			InputSchema: object(map[string]interface{}{
				"input_dir":  prop("string", "Directory holding .xml (and optionally .txt) files"),
				"output_dir": prop("string", "Directory receiving <stem>.txt label files"),
			}, "input_dir", "output_dir"),
		},
		{
			Name:        "dataset_split",
			Description: "Split image/label pairs into images/{train,val} and labels/{train,val}, stratified by each image's dominant class, and write dataset.yaml.",
			InputSchema: object(map[string]interface{}{
				"image_dir":  prop("string", "Directory of images"),
				"label_dir":  prop("string", "Directory of YOLO label files"),
				"output_dir": prop("string", "Dataset root to create"),
				"ratio":      prop("number", "Training fraction in (0, 1). Defaults to split.ratio"),
				"seed":       prop("integer", "Random seed, 0 for time-based. Defaults to split.seed"),
			}, "image_dir", "label_dir", "output_dir"),
		},
		{
			Name:        "dataset_crop",
			Description: "Crop every annotated region into <output>/<split>/<category>/ after a stratified train/val split.",
			InputSchema: object(map[string]interface{}{
				"annotation_dir": prop("string", "Directory of VOC .xml files with sibling images"),
				"output_dir":     prop("string", "Root of the classification dataset"),
				"ratio":          prop("number", "Training fraction in (0, 1). Defaults to split.ratio"),
				"seed":           prop("integer", "Random seed, 0 for time-based. Defaults to split.seed"),
				"padding":        prop("number", "Padding fraction. Defaults to the configured padding"),
			}, "annotation_dir", "output_dir"),
		},
		{
			Name:        "dataset_verify",
			Description: "Decode every image under a directory and report the ones that fail.",
			InputSchema: object(map[string]interface{}{
				"dir":    prop("string", "Directory to walk recursively"),
				"remove": prop("boolean", "Delete corrupted images. Default false"),
			}, "dir"),
		},
		{
			Name:        "dataset_curate",
			Description: "Copy images whose detection count exceeds min_detections, with their label files. Counts come from a predict log or a predictions directory.",
			InputSchema: object(map[string]interface{}{
				"log":            prop("string", "Detector console log"),
				"predictions":    prop("string", "Directory of prediction label files, used when log is empty"),
				"image_dir":      prop("string", "Directory of candidate images"),
				"label_dir":      prop("string", "Directory of their label files"),
				"output_dir":     prop("string", "Receives images/ and labels/"),
				"min_detections": prop("integer", "Keep images with strictly more detections. Defaults to curate.min_detections"),
			}, "image_dir", "label_dir", "output_dir"),
		},
		{
			Name:        "detector_evaluate",
			Description: "Score a detector's fit/unfit decisions on images named ab_* (unfit) and no_* (fit) at each threshold on the fraction of normal regions.",
			InputSchema: object(map[string]interface{}{
				"image_dir": prop("string", "Directory of test images"),
				"detector":  prop("string", "Predictions directory, inference URL or .onnx model"),
				"thresholds": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "number"},
					"description": "Thresholds in [0, 1]. Defaults to evaluate.thresholds",
				},
				"save": prop("boolean", "Store the run when a database is configured. Default true"),
			}, "image_dir", "detector"),
		},
		{
			Name:        "evaluation_runs",
			Description: "List stored evaluation runs, or return one run's result when id is given.",
			InputSchema: object(map[string]interface{}{
				"id": prop("string", "Run id"),
			}),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
