package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"gatecam/internal/model"
)

const remoteTimeout = 8 * time.Second

// RemoteDetector posts the encoded frame to an HTTP inference service.
//
// The request body is {"image": "<base64 jpeg>"}. Two response shapes are
// understood: "predictions" with center x/y plus width/height, and
// "detections" with an [x1, y1, x2, y2] bbox.
type RemoteDetector struct {
	url    string
	client *http.Client
}

func NewRemoteDetector(url string, client *http.Client) *RemoteDetector {
	if client == nil {
		client = &http.Client{Timeout: remoteTimeout}
	}
	return &RemoteDetector{url: url, client: client}
}

type remoteRequest struct {
	Image string `json:"image"`
}

type remoteResponse struct {
	Predictions []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
		Confidence float64 `json:"confidence"`
		Class      any     `json:"class"`
	} `json:"predictions"`
	Detections []struct {
		BBox       []float64 `json:"bbox"`
		Confidence float64   `json:"confidence"`
		Class      any       `json:"class"`
	} `json:"detections"`
}

func (d *RemoteDetector) Detect(ctx context.Context, frame *model.Frame) ([]model.Detection, error) {
	if frame == nil || len(frame.JPEG) == 0 {
		return nil, fmt.Errorf("remote detect: empty frame")
	}

	body, err := json.Marshal(remoteRequest{Image: base64.StdEncoding.EncodeToString(frame.JPEG)})
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote detect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("remote detect: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote detect: decode response: %w", err)
	}

	dets := make([]model.Detection, 0, len(out.Predictions)+len(out.Detections))
	for _, p := range out.Predictions {
		dets = append(dets, model.Detection{
			BBox: model.BoundingBox{
				X1: p.X - p.Width/2,
				Y1: p.Y - p.Height/2,
				X2: p.X + p.Width/2,
				Y2: p.Y + p.Height/2,
			},
			Confidence: p.Confidence,
			Label:      classLabel(p.Class),
		})
	}
	for _, r := range out.Detections {
		if len(r.BBox) != 4 {
			continue
		}
		dets = append(dets, model.Detection{
			BBox:       model.BoundingBox{X1: r.BBox[0], Y1: r.BBox[1], X2: r.BBox[2], Y2: r.BBox[3]},
			Confidence: r.Confidence,
			Label:      classLabel(r.Class),
		})
	}
	return dets, nil
}

// cocoVehicles maps COCO class ids (0-based, as YOLO reports them) to labels.
var cocoVehicles = map[int]string{
	2: "car",
	3: "motorcycle",
	5: "bus",
	7: "truck",
}

func classLabel(class any) string {
	switch c := class.(type) {
	case string:
		if id, err := strconv.Atoi(c); err == nil {
			return classLabel(float64(id))
		}
		return c
	case float64:
		if label, ok := cocoVehicles[int(c)]; ok {
			return label
		}
		return fmt.Sprintf("class%d", int(c))
	}
	return ""
}
