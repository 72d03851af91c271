// Package tracking keeps per-camera vehicle identities across detection cycles.
//
// A Tracker is owned by a single goroutine (the detection loop) and is not
// safe for concurrent use.
package tracking

import (
	"fmt"
	"time"

	"gatecam/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultMatchThreshold = 0.3
	DefaultTTL            = 3 * time.Second
)

type Config struct {
	MatchThreshold float64
	TTL            time.Duration
}

// Tracker is a registry of active tracks for one camera.
type Tracker struct {
	cameraID int
	cfg      Config
	tracks   []*model.Track // creation order
	newID    func() string
}

// New creates the tracker of one camera. A zero MatchThreshold or TTL means
// the default. A match always needs some overlap (IoU > 0), so a threshold of
// 0 could not loosen matching anyway; config.Load rejects it.
func New(cameraID int, cfg Config) *Tracker {
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Tracker{
		cameraID: cameraID,
		cfg:      cfg,
		newID:    func() string { return fmt.Sprintf("trk_%s", uuid.NewString()) },
	}
}

// Update runs one association cycle and returns the number of tracks created.
//
// Tracks claim detections greedily in creation order: each takes the unused
// detection with the highest IoU if it reaches the match threshold. Ties go
// to the earlier detection. Leftover detections open new tracks, then every
// track unseen for longer than the TTL is dropped. A track that already
// outlived its TTL before this cycle cannot claim anything.
func (t *Tracker) Update(detections []model.Detection, now time.Time) int {
	used := make([]bool, len(detections))

	for _, tr := range t.tracks {
		if tr.Expired(now, t.cfg.TTL) {
			continue
		}
		best, bestIoU := -1, 0.0
		for i, det := range detections {
			if used[i] {
				continue
			}
			if iou := tr.BBox.IoU(det.BBox); iou > bestIoU {
				best, bestIoU = i, iou
			}
		}
		if best < 0 || bestIoU < t.cfg.MatchThreshold {
			continue
		}
		used[best] = true
		det := detections[best]
		tr.BBox = det.BBox
		tr.Confidence = det.Confidence
		if det.Label != "" {
			tr.Label = det.Label
		}
		tr.LastSeen = now
		tr.Hits++
	}

	created := 0
	for i, det := range detections {
		if used[i] {
			continue
		}
		t.tracks = append(t.tracks, &model.Track{
			ID:         t.newID(),
			CameraID:   t.cameraID,
			BBox:       det.BBox,
			Label:      det.Label,
			Confidence: det.Confidence,
			FirstSeen:  now,
			LastSeen:   now,
			Hits:       1,
		})
		created++
	}

	t.expire(now)
	return created
}

func (t *Tracker) expire(now time.Time) {
	kept := t.tracks[:0]
	for _, tr := range t.tracks {
		if !tr.Expired(now, t.cfg.TTL) {
			kept = append(kept, tr)
		}
	}
	for i := len(kept); i < len(t.tracks); i++ {
		t.tracks[i] = nil
	}
	t.tracks = kept
}

// Tracks returns copies of the active tracks in creation order.
func (t *Tracker) Tracks() []model.Track {
	out := make([]model.Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		out = append(out, *tr)
	}
	return out
}

// MarkCaptured flips the captured flag of a track. It reports false when the
// track is unknown or was already captured, so a capture fires at most once.
func (t *Tracker) MarkCaptured(id string) bool {
	for _, tr := range t.tracks {
		if tr.ID == id {
			if tr.Captured {
				return false
			}
			tr.Captured = true
			return true
		}
	}
	return false
}

func (t *Tracker) Len() int { return len(t.tracks) }

func (t *Tracker) CameraID() int { return t.cameraID }
