// Package capture fires one capture per dwelling vehicle and forwards it downstream.
package capture

import (
	"fmt"
	"image"
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultDwellDelay = 3 * time.Second
	DefaultQuality    = 90
)

// TrackSet is the slice of tracker behaviour the scheduler needs.
type TrackSet interface {
	CameraID() int
	Tracks() []model.Track
	MarkCaptured(id string) bool
}

// Encoder produces the capture JPEG from the raw frame.
type Encoder interface {
	Encode(img image.Image, maxWidth, quality int) ([]byte, error)
}

// Dispatcher takes finished capture jobs. Pool implements it.
type Dispatcher interface {
	Dispatch(job Job)
}

type Config struct {
	DwellDelay  time.Duration
	MaxRuntime  time.Duration // 0 = unbounded
	MaxCaptures int           // 0 = unbounded
	Quality     int
	LocationID  string
	ModelID     string
	Direction   string
}

// Scheduler decides when a track is captured. It runs on the detection
// goroutine together with the trackers it inspects.
type Scheduler struct {
	cfg        Config
	encoder    Encoder
	dispatcher Dispatcher
	logger     *logger.Logger

	started  time.Time
	captures int
}

func NewScheduler(cfg Config, encoder Encoder, dispatcher Dispatcher, logger *logger.Logger, started time.Time) *Scheduler {
	if cfg.DwellDelay <= 0 {
		cfg.DwellDelay = DefaultDwellDelay
	}
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Scheduler{
		cfg:        cfg,
		encoder:    encoder,
		dispatcher: dispatcher,
		logger:     logger,
		started:    started,
	}
}

// Run captures every track of the set that has dwelled long enough and was
// not captured yet, using the current frame. It returns the number fired.
//
// The track is marked captured before the image is encoded and handed off,
// so a slow or failing forward can never cause a second capture.
func (s *Scheduler) Run(set TrackSet, frame *model.Frame, now time.Time) int {
	fired := 0
	for _, tr := range set.Tracks() {
		if tr.Captured || tr.Age(now) < s.cfg.DwellDelay {
			continue
		}
		if s.Exhausted(now) {
			break
		}
		if !set.MarkCaptured(tr.ID) {
			continue
		}
		s.captures++
		fired++

		img := s.encode(frame)
		filename := Filename(now, set.CameraID(), tr.ID)
		s.logger.Info("📸 Camera %d: capturing %s after %v (%s)", set.CameraID(), tr.ID, tr.Age(now).Round(time.Millisecond), filename)

		s.dispatcher.Dispatch(Job{
			EventID:  uuid.NewString(),
			TrackID:  tr.ID,
			CameraID: set.CameraID(),
			Image:    img,
			Meta: Metadata{
				LocationID: s.cfg.LocationID,
				ModelID:    s.cfg.ModelID,
				Direction:  s.cfg.Direction,
				Filename:   filename,
			},
			At: now,
		})
	}
	return fired
}

// encode re-encodes the raw frame at capture quality, falling back to the
// display JPEG when that is not possible.
func (s *Scheduler) encode(frame *model.Frame) []byte {
	if frame == nil {
		return nil
	}
	if frame.Raw != nil && s.encoder != nil {
		buf, err := s.encoder.Encode(frame.Raw, 0, s.cfg.Quality)
		if err == nil && len(buf) > 0 {
			return buf
		}
		s.logger.Warning("Camera %d: capture encode failed, using display frame: %v", frame.CameraID, err)
	}
	return frame.JPEG
}

// Exhausted reports whether the session hit its runtime or capture bound.
func (s *Scheduler) Exhausted(now time.Time) bool {
	if s.cfg.MaxRuntime > 0 && now.Sub(s.started) >= s.cfg.MaxRuntime {
		return true
	}
	return s.cfg.MaxCaptures > 0 && s.captures >= s.cfg.MaxCaptures
}

func (s *Scheduler) Captures() int { return s.captures }

// Filename is the traceable name of a capture image.
func Filename(at time.Time, cameraID int, trackID string) string {
	return fmt.Sprintf("%s_cam%d_%s.jpg", at.Format("2006-01-02_15-04-05.000"), cameraID, trackID)
}
