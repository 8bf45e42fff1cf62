// Package detect talks to the person-detection sidecar. Detection runs as
// a separate service so the heavy model weights stay out of this process;
// the client posts a frame and gets back a crowd count.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/lox/coastwatch/internal/httputil"
)

// Result is the detector's verdict for one frame.
type Result struct {
	Count         int     `json:"person_count"`
	AvgConfidence float64 `json:"avg_confidence"`
	Method        string  `json:"method"`
}

// Client posts frames to the detection sidecar.
type Client struct {
	endpoint            string
	confidenceThreshold float64
	client              *http.Client
}

// NewClient returns a detector client for the given sidecar endpoint.
// Detections below threshold are discarded server-side; the threshold is
// forwarded with each request.
func NewClient(endpoint string, threshold float64) *Client {
	return &Client{
		endpoint:            endpoint,
		confidenceThreshold: threshold,
		client:              httputil.NewClient(),
	}
}

// Detect counts people in the frame. The raw image bytes go in the request
// body; the sidecar handles decoding.
func (c *Client) Detect(ctx context.Context, imageBytes []byte) (*Result, error) {
	url := fmt.Sprintf("%s/detect?confidence=%.2f", c.endpoint, c.confidenceThreshold)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("detect: building request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detect: sidecar returned %d: %s", resp.StatusCode, body)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("detect: decoding response: %w", err)
	}
	return &result, nil
}
