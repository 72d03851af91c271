package model

import (
	"image"
	"time"
)

// Camera describes one opened capture device.
type Camera struct {
	ID           int     `json:"id"`
	Backend      string  `json:"backend"`
	TargetWidth  int     `json:"target_width"`
	TargetHeight int     `json:"target_height"`
	TargetFPS    float64 `json:"target_fps"`
	Open         bool    `json:"open"`
}

// Frame is the latest value held in a camera's slot. Frames are never mutated
// after they are published.
type Frame struct {
	CameraID   int
	Raw        image.Image
	JPEG       []byte
	Width      int
	Height     int
	Timestamp  time.Time
	Generation uint64
}

// NewerThan reports whether the frame passes a freshness query.
func (f *Frame) NewerThan(minTS time.Time, minGen uint64) bool {
	if f == nil || len(f.JPEG) == 0 {
		return false
	}
	return f.Generation >= minGen && f.Timestamp.After(minTS)
}
