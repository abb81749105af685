package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DefaultHTTPTimeout bounds one inference request when Client is nil.
const DefaultHTTPTimeout = 60 * time.Second

// HTTPDetector posts each image as multipart form data to an inference
// service and decodes its JSON reply:
//
//	{"detections": [{"class_id": 2, "confidence": 0.91,
//	                 "box": {"xmin": 10, "ymin": 12, "xmax": 80, "ymax": 95}}]}
type HTTPDetector struct {
	Endpoint string

	// Field is the form field carrying the image. Defaults to "image".
	Field string

	Client *http.Client
}

type httpResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, imagePath string) ([]Detection, error) {
	body, contentType, err := d.encode(imagePath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference service returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	return out.Detections, nil
}

func (d *HTTPDetector) encode(imagePath string) (io.Reader, string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	field := d.Field
	if field == "" {
		field = "image"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filepath.Base(imagePath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (d *HTTPDetector) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}
