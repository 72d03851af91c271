package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"gatecam/internal/dto"
	"gatecam/internal/model"
	"gatecam/internal/service/capture"
	"gatecam/internal/service/detection"
)

// session is one start..stop run of the pipeline.
type session struct {
	req      dto.StartRequest
	cameras  []int
	started  time.Time
	detector detection.Detector
	pool     *capture.Pool

	cancel context.CancelFunc
	done   chan struct{} // closed when the detection loop returns
	ended  chan struct{} // closed by markStopped

	mu         sync.Mutex
	running    bool
	stopped    time.Time
	stopReason string
	events     []model.CaptureEvent
	tracks     map[int]int
}

func newSession(req dto.StartRequest, started time.Time) *session {
	return &session{
		req:     req,
		started: started,
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
		running: true,
		tracks:  make(map[int]int),
	}
}

func (s *session) addEvent(ev model.CaptureEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *session) setTracks(cameraID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[cameraID] = n
}

// markStopped records the end of the session. It reports false when the
// session had already been stopped.
func (s *session) markStopped(at time.Time, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.running = false
	s.stopped = at
	s.stopReason = reason
	close(s.ended)
	return true
}

func (s *session) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *session) info() dto.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracks := make(map[int]int, len(s.tracks))
	for k, v := range s.tracks {
		tracks[k] = v
	}
	return dto.SessionInfo{
		Running:    s.running,
		LocationID: s.req.LocationID,
		ModelID:    s.req.ModelID,
		Direction:  s.req.Direction,
		StartedAt:  s.started,
		StoppedAt:  s.stopped,
		StopReason: s.stopReason,
		Captures:   len(s.events),
		Tracks:     tracks,
		Events:     slices.Clone(s.events),
	}
}
