// Package detection defines the vehicle detector capability and its variants.
package detection

import (
	"context"
	"errors"
	"io"
	"strings"

	"gatecam/internal/model"
)

// ErrNotReady is returned by detectors whose backing model is not loaded.
var ErrNotReady = errors.New("detector not ready")

// Detector finds objects in one frame. Implementations hold no per-frame state.
type Detector interface {
	Detect(ctx context.Context, frame *model.Frame) ([]model.Detection, error)
}

// Func adapts a plain function to Detector.
type Func func(ctx context.Context, frame *model.Frame) ([]model.Detection, error)

func (f Func) Detect(ctx context.Context, frame *model.Frame) ([]model.Detection, error) {
	return f(ctx, frame)
}

// VehicleLabels are the classes the pipeline tracks.
var VehicleLabels = []string{"car", "motorcycle", "bus", "truck"}

// Filter keeps detections at or above minConfidence whose label is in labels.
// An empty labels list accepts every label.
func Filter(dets []model.Detection, minConfidence float64, labels []string) []model.Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence < minConfidence {
			continue
		}
		if len(labels) > 0 && !hasLabel(labels, d.Label) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// Filtered wraps a detector with Filter. Closing the result closes d when d
// is an io.Closer.
func Filtered(d Detector, minConfidence float64, labels []string) Detector {
	return &filtered{next: d, minConfidence: minConfidence, labels: labels}
}

type filtered struct {
	next          Detector
	minConfidence float64
	labels        []string
}

func (f *filtered) Detect(ctx context.Context, frame *model.Frame) ([]model.Detection, error) {
	dets, err := f.next.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	return Filter(dets, f.minConfidence, f.labels), nil
}

func (f *filtered) Close() error {
	if c, ok := f.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
