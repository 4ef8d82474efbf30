// Package recognition calls the external offender-identification service.
// The engine only needs a worker id back; an empty id means nobody was
// identified and the violation stays pending manual selection.
package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

type Client struct {
	URL string
}

func NewClient(baseURL string) *Client {
	return &Client{URL: baseURL}
}

type identifyResponse struct {
	WorkerID   string  `json:"worker_id"`
	Confidence float64 `json:"confidence"`
}

// Identify posts the snapshot and returns the identified worker id, or ""
// when the service could not identify anyone.
func (c *Client) Identify(ctx context.Context, cameraID string, ts time.Time, frame []byte) (string, error) {
	if len(frame) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return "", fmt.Errorf("write image data: %w", err)
	}
	if err := writer.WriteField("camera_id", cameraID); err != nil {
		return "", fmt.Errorf("write camera field: %w", err)
	}
	if err := writer.WriteField("timestamp", ts.UTC().Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("write timestamp field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/identify", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("bad status: %s, error: %s", resp.Status, bodyBytes)
	}

	var out identifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return out.WorkerID, nil
}
