package dto

import (
	"time"

	"gatecam/internal/model"
)

// CaptureFilter narrows the recorded capture events.
type CaptureFilter struct {
	CameraID   *int
	Status     model.CaptureStatus
	LocationID string
	After      time.Time
	Before     time.Time
	Limit      int
	Offset     int
}

type CaptureList struct {
	Items  []model.CaptureEvent `json:"items"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// CaptureStats summarizes recorded captures per status and per camera.
type CaptureStats struct {
	Total     int                         `json:"total"`
	PerStatus map[model.CaptureStatus]int `json:"per_status"`
	PerCamera map[int]int                 `json:"per_camera"`
}

// SessionInfo describes the current (or last) capture session.
type SessionInfo struct {
	Running    bool                 `json:"running"`
	LocationID string               `json:"location_id,omitempty"`
	ModelID    string               `json:"model_id,omitempty"`
	Direction  string               `json:"direction,omitempty"`
	Cameras    []model.Camera       `json:"cameras"`
	Generation uint64               `json:"generation"`
	StartedAt  time.Time            `json:"started_at,omitempty"`
	StoppedAt  time.Time            `json:"stopped_at,omitempty"`
	StopReason string               `json:"stop_reason,omitempty"`
	Captures   int                  `json:"captures"`
	Tracks     map[int]int          `json:"tracks"`
	Events     []model.CaptureEvent `json:"events"`
}
