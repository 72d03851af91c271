package model

import "time"

// Track is one vehicle's identity across frames, summarized by its latest box.
type Track struct {
	ID         string      `json:"id"`
	CameraID   int         `json:"camera_id"`
	BBox       BoundingBox `json:"bbox"`
	Label      string      `json:"label,omitempty"`
	Confidence float64     `json:"confidence"`
	FirstSeen  time.Time   `json:"first_seen"`
	LastSeen   time.Time   `json:"last_seen"`
	Hits       int         `json:"hits"`
	Captured   bool        `json:"captured"`
}

// Age is the time the track has existed at now.
func (t Track) Age(now time.Time) time.Duration {
	return now.Sub(t.FirstSeen)
}

// Expired reports whether the track went unmatched for longer than ttl.
func (t Track) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.LastSeen) > ttl
}
