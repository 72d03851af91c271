package model

import "time"

// CaptureStatus is the outcome of the single forward attempt of a capture.
type CaptureStatus string

const (
	CaptureForwarded CaptureStatus = "forwarded"
	CaptureFailed    CaptureStatus = "failed"
	CaptureDropped   CaptureStatus = "dropped"
	CaptureSkipped   CaptureStatus = "skipped"
)

// CaptureEvent records the capture of one track. It is built once the forward
// attempt has finished and is not modified afterwards.
type CaptureEvent struct {
	ID         int64         `json:"id,omitempty"`
	EventID    string        `json:"event_id"`
	TrackID    string        `json:"track_id"`
	CameraID   int           `json:"camera_id"`
	Filename   string        `json:"filename"`
	LocationID string        `json:"location_id"`
	ModelID    string        `json:"model_id"`
	Direction  string        `json:"direction"`
	Forwarded  bool          `json:"forwarded"`
	Status     CaptureStatus `json:"status"`
	StatusCode int           `json:"status_code"`
	Error      string        `json:"error,omitempty"`
	At         time.Time     `json:"at"`
	Image      []byte        `json:"-"`
}
