package camera

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"gatecam/internal/model"
)

// ErrNoFreshFrame is returned by Wait when no frame newer than the requested
// thresholds shows up before the deadline.
var ErrNoFreshFrame = errors.New("no fresh frame")

// SlotStore keeps only the latest frame of every camera plus the process-wide
// generation counter. A publish replaces the previous value; nothing queues.
type SlotStore struct {
	mu         sync.Mutex
	slots      map[int]*model.Frame
	generation uint64
	now        func() time.Time
}

func NewSlotStore() *SlotStore {
	return &SlotStore{
		slots: make(map[int]*model.Frame),
		now:   time.Now,
	}
}

// Publish stores a frame for the camera on behalf of a producer started in
// generation gen. A producer from an older generation is rejected so a camera
// that outlived its stop cannot write into the new camera set. The returned
// frame must not be modified.
func (s *SlotStore) Publish(cameraID int, gen uint64, raw image.Image, jpeg []byte, width, height int) (*model.Frame, bool) {
	f := &model.Frame{
		CameraID:   cameraID,
		Raw:        raw,
		JPEG:       jpeg,
		Width:      width,
		Height:     height,
		Generation: gen,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, false
	}
	f.Timestamp = s.now()
	s.slots[cameraID] = f
	return f, true
}

// Latest returns the newest frame of a camera, if any.
func (s *SlotStore) Latest(cameraID int) (*model.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.slots[cameraID]
	return f, ok
}

func (s *SlotStore) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Restart drops every slot and bumps the generation so readers holding an
// older generation stop accepting anything published before this point.
func (s *SlotStore) Restart() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.slots)
	s.generation++
	return s.generation
}

// Wait polls the camera slot until a frame newer than minTS and minGen, and
// not older than staleness (0 disables the check), is available.
func (s *SlotStore) Wait(ctx context.Context, cameraID int, minTS time.Time, minGen uint64, staleness, interval time.Duration) (*model.Frame, error) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if f, ok := s.Latest(cameraID); ok && f.NewerThan(minTS, minGen) {
			if staleness <= 0 || s.now().Sub(f.Timestamp) <= staleness {
				return f, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ErrNoFreshFrame
		case <-ticker.C:
		}
	}
}
