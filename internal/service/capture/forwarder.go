package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrNoEndpoint is returned when no forward URL is configured.
var ErrNoEndpoint = errors.New("no forward endpoint configured")

// DefaultForwardTimeout covers downstream inference on the ingestion side.
const DefaultForwardTimeout = 3 * time.Minute

// Metadata travels with every forwarded capture as form fields.
type Metadata struct {
	LocationID string `json:"location_id"`
	ModelID    string `json:"model_id"`
	Direction  string `json:"direction"`
	Filename   string `json:"filename"`
}

// Forwarder ships one capture downstream and returns the HTTP status code.
type Forwarder interface {
	Forward(ctx context.Context, image []byte, meta Metadata) (int, error)
}

// HTTPForwarder posts captures as multipart/form-data. It makes exactly one
// attempt per call.
type HTTPForwarder struct {
	url    string
	client *http.Client
}

func NewHTTPForwarder(url string, timeout time.Duration) *HTTPForwarder {
	if timeout <= 0 {
		timeout = DefaultForwardTimeout
	}
	return &HTTPForwarder{url: url, client: &http.Client{Timeout: timeout}}
}

func (f *HTTPForwarder) Forward(ctx context.Context, image []byte, meta Metadata) (int, error) {
	if f.url == "" {
		return 0, ErrNoEndpoint
	}
	if len(image) == 0 {
		return 0, fmt.Errorf("forward %s: empty image", meta.Filename)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", meta.Filename)
	if err != nil {
		return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
	}
	if _, err := part.Write(image); err != nil {
		return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
	}
	fields := [][2]string{
		{"location_id", meta.LocationID},
		{"model_id", meta.ModelID},
		{"direction", meta.Direction},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, &body)
	if err != nil {
		return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("forward %s: %w", meta.Filename, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("forward %s: downstream returned %d", meta.Filename, resp.StatusCode)
	}
	return resp.StatusCode, nil
}
