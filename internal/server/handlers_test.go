package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ironsheep/fitset/internal/store"
)

// createTestImageFile writes a JPEG of the given size into dir.
func createTestImageFile(t *testing.T, dir, name string, width, height int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const testVOC = `<annotation>
	<filename>%s</filename>
	<size><width>80</width><height>60</height></size>
	<object><name>normal</name><bndbox><xmin>10</xmin><ymin>10</ymin><xmax>30</xmax><ymax>30</ymax></bndbox></object>
	<object><name>high</name><bndbox><xmin>40</xmin><ymin>20</ymin><xmax>70</xmax><ymax>50</ymax></bndbox></object>
	<object><name>unknown</name><bndbox><xmin>1</xmin><ymin>1</ymin><xmax>5</xmax><ymax>5</ymax></bndbox></object>
</annotation>`

// callTool runs a tools/call request and decodes the text payload into out.
func callTool(t *testing.T, s *Server, name string, args interface{}, out interface{}) *MCPError {
	t.Helper()

	argsJSON, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: argsJSON})

	resp := s.handleRequest(context.Background(), &MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	if resp.Error != nil {
		return resp.Error
	}

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	text := content[0]["text"].(string)
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("failed to decode %s result %q: %v", name, text, err)
		}
	}
	return nil
}

func TestHandleToolsCall_ImageInfo(t *testing.T) {
	s := New(nil)
	path := createTestImageFile(t, t.TempDir(), "a.jpg", 100, 80)

	var info struct {
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Format string `json:"format"`
	}
	if e := callTool(t, s, "image_info", map[string]interface{}{"path": path}, &info); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if info.Width != 100 || info.Height != 80 || info.Format != "jpeg" {
		t.Errorf("got %+v", info)
	}
}

func TestHandleToolsCall_NonExistentFile(t *testing.T) {
	s := New(nil)
	e := callTool(t, s, "image_info", map[string]interface{}{"path": "/nonexistent/image.png"}, nil)
	if e == nil {
		t.Fatal("Expected error for non-existent file")
	}
	if e.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", e.Code)
	}
}

func TestHandleToolsCall_AnnotationParse(t *testing.T) {
	s := New(nil)
	path := filepath.Join(t.TempDir(), "no_1.xml")
	writeFile(t, path, fmt.Sprintf(testVOC, "no_1.jpg"))

	var got struct {
		Filename    string `json:"filename"`
		Width       int    `json:"width"`
		Objects     []any  `json:"objects"`
		Annotations []struct {
			Category string `json:"category"`
			ClassID  int    `json:"class_id"`
		} `json:"annotations"`
	}
	if e := callTool(t, s, "annotation_parse", map[string]interface{}{"path": path}, &got); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if got.Filename != "no_1.jpg" || got.Width != 80 {
		t.Errorf("document: got %+v", got)
	}
	if len(got.Objects) != 3 {
		t.Errorf("objects: got %d, want 3", len(got.Objects))
	}
	if len(got.Annotations) != 2 || got.Annotations[0].Category != "normal" || got.Annotations[1].ClassID != 3 {
		t.Errorf("annotations: got %+v", got.Annotations)
	}
}

func TestHandleToolsCall_BoxAdjust(t *testing.T) {
	s := New(nil)

	var box struct {
		XMin, YMin, XMax, YMax int
	}
	args := map[string]interface{}{"xmin": 10, "ymin": 10, "xmax": 110, "ymax": 60, "width": 115, "height": 200}
	if e := callTool(t, s, "box_adjust", args, &box); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	// default padding 0.15: padW 15, padH 7
	if box.XMin != 0 || box.YMin != 3 || box.XMax != 115 || box.YMax != 67 {
		t.Errorf("got %+v", box)
	}

	args["padding"] = 0.0
	if e := callTool(t, s, "box_adjust", args, &box); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if box.XMin != 10 || box.XMax != 110 {
		t.Errorf("zero padding: got %+v", box)
	}

	args["xmax"] = 10
	if e := callTool(t, s, "box_adjust", args, nil); e == nil {
		t.Error("zero-width box should fail")
	}
}

func TestHandleToolsCall_DatasetConvert(t *testing.T) {
	s := New(nil)
	in := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(in, "no_1.xml"), fmt.Sprintf(testVOC, "no_1.jpg"))
	writeFile(t, filepath.Join(in, "no_2.txt"), "2 0.5 0.5 0.1 0.1\n")

	var stats struct {
		Converted int `json:"converted"`
		Copied    int `json:"copied"`
	}
	args := map[string]interface{}{"input_dir": in, "output_dir": out}
	if e := callTool(t, s, "dataset_convert", args, &stats); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if stats.Converted != 1 || stats.Copied != 1 {
		t.Errorf("got %+v", stats)
	}

	data, err := os.ReadFile(filepath.Join(out, "no_1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Split(strings.TrimSpace(string(data)), "\n"); len(lines) != 2 {
		t.Errorf("label lines: got %q", data)
	}
}

func TestHandleToolsCall_DatasetSplit(t *testing.T) {
	s := New(nil)
	images := t.TempDir()
	labels := t.TempDir()
	out := filepath.Join(t.TempDir(), "det")
	for i := 0; i < 10; i++ {
		stem := fmt.Sprintf("img_%d", i)
		writeFile(t, filepath.Join(images, stem+".jpg"), "x")
		writeFile(t, filepath.Join(labels, stem+".txt"), "2 0.5 0.5 0.1 0.1\n")
	}

	var report struct {
		Train   int    `json:"train"`
		Val     int    `json:"val"`
		Dataset string `json:"dataset"`
	}
	args := map[string]interface{}{"image_dir": images, "label_dir": labels, "output_dir": out, "ratio": 0.8, "seed": 5}
	if e := callTool(t, s, "dataset_split", args, &report); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if report.Train != 8 || report.Val != 2 {
		t.Errorf("got %+v", report)
	}
	if _, err := os.Stat(report.Dataset); err != nil {
		t.Errorf("dataset.yaml not written: %v", err)
	}
}

func TestHandleToolsCall_DatasetCrop(t *testing.T) {
	s := New(nil)
	src := t.TempDir()
	out := t.TempDir()
	for i := 0; i < 2; i++ {
		name := fmt.Sprintf("no_%d", i)
		createTestImageFile(t, src, name+".jpg", 80, 60)
		writeFile(t, filepath.Join(src, name+".xml"), fmt.Sprintf(testVOC, name+".jpg"))
	}

	var report struct {
		Written int `json:"written"`
	}
	args := map[string]interface{}{"annotation_dir": src, "output_dir": out, "ratio": 0.5, "seed": 1}
	if e := callTool(t, s, "dataset_crop", args, &report); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if report.Written != 4 {
		t.Errorf("written: got %d, want 4", report.Written)
	}
	if _, err := os.Stat(filepath.Join(out, "train", "normal")); err != nil {
		t.Errorf("output tree missing: %v", err)
	}
}

func TestHandleToolsCall_DatasetVerify(t *testing.T) {
	s := New(nil)
	dir := t.TempDir()
	createTestImageFile(t, dir, "good.jpg", 10, 10)
	writeFile(t, filepath.Join(dir, "bad.jpg"), "not an image")

	var report struct {
		Checked   int      `json:"checked"`
		Corrupted []string `json:"corrupted"`
		Removed   []string `json:"removed"`
	}
	if e := callTool(t, s, "dataset_verify", map[string]interface{}{"dir": dir, "remove": true}, &report); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if report.Checked != 2 || len(report.Corrupted) != 1 || len(report.Removed) != 1 {
		t.Errorf("got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.jpg")); !os.IsNotExist(err) {
		t.Error("corrupted image should be removed")
	}
}

func TestHandleToolsCall_DatasetCurate(t *testing.T) {
	s := New(nil)
	images := t.TempDir()
	labels := t.TempDir()
	preds := t.TempDir()
	out := t.TempDir()

	writeFile(t, filepath.Join(images, "a.jpg"), "a")
	writeFile(t, filepath.Join(images, "b.jpg"), "b")
	writeFile(t, filepath.Join(labels, "a.txt"), "")
	writeFile(t, filepath.Join(labels, "b.txt"), "")
	writeFile(t, filepath.Join(preds, "a.txt"), strings.Repeat("2 0.5 0.5 0.1 0.1\n", 3))
	writeFile(t, filepath.Join(preds, "b.txt"), "2 0.5 0.5 0.1 0.1\n")

	var report struct {
		Selected int `json:"selected"`
		Copied   int `json:"copied"`
	}
	args := map[string]interface{}{"predictions": preds, "image_dir": images, "label_dir": labels, "output_dir": out, "min_detections": 2}
	if e := callTool(t, s, "dataset_curate", args, &report); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if report.Selected != 1 || report.Copied != 1 {
		t.Errorf("got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(out, "images", "a.jpg")); err != nil {
		t.Errorf("curated image missing: %v", err)
	}

	delete(args, "predictions")
	if e := callTool(t, s, "dataset_curate", args, nil); e == nil {
		t.Error("curate without log or predictions should fail")
	}
}

func TestHandleToolsCall_DetectorEvaluate(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	s := New(nil, WithStore(st))

	images := t.TempDir()
	preds := t.TempDir()
	createTestImageFile(t, images, "ab_1.jpg", 40, 40)
	createTestImageFile(t, images, "no_1.jpg", 40, 40)
	createTestImageFile(t, images, "xx_1.jpg", 40, 40)
	writeFile(t, filepath.Join(preds, "ab_1.txt"), "1 0.5 0.5 0.2 0.2\n2 0.3 0.3 0.2 0.2\n")
	writeFile(t, filepath.Join(preds, "no_1.txt"), "2 0.5 0.5 0.2 0.2\n2 0.3 0.3 0.2 0.2\n1 0.7 0.7 0.1 0.1\n")

	var got struct {
		RunID string `json:"run_id"`
		Rows  []struct {
			Threshold float64 `json:"threshold"`
			TPR       float64 `json:"tpr"`
			TNR       float64 `json:"tnr"`
		} `json:"rows"`
		Images int `json:"images"`
	}
	args := map[string]interface{}{"image_dir": images, "detector": preds, "thresholds": []float64{0.6, 0.5}}
	if e := callTool(t, s, "detector_evaluate", args, &got); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}

	if got.Images != 2 {
		t.Errorf("images: got %d, want 2", got.Images)
	}
	if len(got.Rows) != 2 || got.Rows[0].Threshold != 0.5 {
		t.Fatalf("rows: got %+v", got.Rows)
	}
	// ab_1 is 1/2 normal: Fit at 0.5, Unfit at 0.6. no_1 is 2/3 normal: Fit at both.
	if got.Rows[0].TPR != 0 || got.Rows[0].TNR != 1 || got.Rows[1].TPR != 1 || got.Rows[1].TNR != 1 {
		t.Errorf("rates: got %+v", got.Rows)
	}
	if got.RunID == "" {
		t.Fatal("run should be stored")
	}

	var runs []struct {
		ID string `json:"id"`
	}
	if e := callTool(t, s, "evaluation_runs", map[string]interface{}{}, &runs); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if len(runs) != 1 || runs[0].ID != got.RunID {
		t.Errorf("runs: got %+v", runs)
	}

	var one struct {
		Rows []any `json:"rows"`
	}
	if e := callTool(t, s, "evaluation_runs", map[string]interface{}{"id": got.RunID}, &one); e != nil {
		t.Fatalf("Unexpected error: %+v", e)
	}
	if len(one.Rows) != 2 {
		t.Errorf("stored rows: got %d", len(one.Rows))
	}
}

func TestHandleToolsCall_EvaluationRunsWithoutStore(t *testing.T) {
	s := New(nil)
	e := callTool(t, s, "evaluation_runs", map[string]interface{}{}, nil)
	if e == nil || e.Data != errNoStore.Error() {
		t.Errorf("got %+v", e)
	}
}

func TestHandleToolsCall_InvalidTool(t *testing.T) {
	s := New(nil)
	e := callTool(t, s, "nonexistent_tool", map[string]interface{}{}, nil)
	if e == nil {
		t.Fatal("Expected error for invalid tool")
	}
	if e.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", e.Code)
	}
}

func TestHandleToolsCall_MissingArguments(t *testing.T) {
	s := New(nil)
	for _, name := range []string{"image_info", "annotation_parse", "dataset_convert", "dataset_split", "dataset_crop", "dataset_verify", "dataset_curate", "detector_evaluate"} {
		if e := callTool(t, s, name, map[string]interface{}{}, nil); e == nil {
			t.Errorf("%s: expected error for missing arguments", name)
		}
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New(nil)
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`{invalid json`),
	})

	if resp.Error == nil {
		t.Fatal("Expected error for invalid params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New(nil)
	if _, err := s.executeTool(context.Background(), "image_info", json.RawMessage(`{invalid`)); err == nil {
		t.Error("executeTool should fail for invalid JSON")
	}
}
