package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gocv.io/x/gocv"
)

// HTTPEngine sends frames to a detection service. The service takes a raw
// image body and answers 404 when it found nothing. A 200 carries either a
// JSON list of detections or {"detected": true} from a service that already
// filters to the target classes.
type HTTPEngine struct {
	url    string
	client *http.Client
}

type detectResponse struct {
	Detected   bool        `json:"detected"`
	Detections []Detection `json:"detections"`
}

// NewHTTPEngine returns an engine that POSTs PNG frames to url.
func NewHTTPEngine(url string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{url: url, client: &http.Client{Timeout: timeout}}
}

// Infer implements Engine.
func (e *HTTPEngine) Infer(ctx context.Context, frame gocv.Mat) ([]Detection, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrInference, err)
	}
	defer buf.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(buf.GetBytes()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: detection service returned %s", ErrInference, resp.Status)
	}

	var body detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrInference, err)
	}
	if len(body.Detections) == 0 && body.Detected {
		return []Detection{{Label: AnyTarget, Confidence: 1}}, nil
	}
	return body.Detections, nil
}
