package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"gatecam/internal/config"
	"gatecam/internal/dto"
	"gatecam/internal/logger"
	"gatecam/internal/model"
	"gatecam/internal/repository"
	"gatecam/internal/service/camera"
	"gatecam/internal/service/capture"
	"gatecam/internal/service/detection"
	"gatecam/internal/service/storage"
	"gatecam/internal/service/tracking"
	"gatecam/internal/service/websocket"
)

// ErrNotRunning is returned by Stop when no session is active.
var ErrNotRunning = errors.New("capture session not running")

// DetectorFactory builds the detector of a session. It is called once per Start.
type DetectorFactory func(ctx context.Context) (detection.Detector, error)

type Options struct {
	Tracking          tracking.Config
	DwellDelay        time.Duration
	MaxRuntime        time.Duration
	MaxCaptures       int
	CaptureQuality    int
	DetectionInterval time.Duration
	DetectionBackoff  time.Duration
	LoopJoinTimeout   time.Duration
	ForwardWorkers    int
	ForwardQueue      int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Tracking:          tracking.Config{MatchThreshold: cfg.MatchThreshold, TTL: cfg.TrackTTL},
		DwellDelay:        cfg.DwellDelay,
		MaxRuntime:        cfg.MaxRuntime,
		MaxCaptures:       cfg.MaxCaptures,
		CaptureQuality:    cfg.JPEGQualityCapture,
		DetectionInterval: cfg.DetectionInterval,
		DetectionBackoff:  cfg.DetectionBackoff,
		LoopJoinTimeout:   5 * time.Second,
		ForwardWorkers:    cfg.ForwardWorkers,
		ForwardQueue:      cfg.ForwardQueue,
	}
}

// Deps are the collaborators of the Manager. Repository, Hub and Archive are optional.
type Deps struct {
	Cameras     *camera.Manager
	Encoder     capture.Encoder
	Forwarder   capture.Forwarder
	NewDetector DetectorFactory
	Repository  repository.CaptureRepository
	Hub         *websocket.HubService
	Archive     *storage.BufferService
}

// Manager runs capture sessions: cameras, the detection/tracking loop, the
// capture scheduler and the forward pool.
type Manager struct {
	cameras     *camera.Manager
	encoder     capture.Encoder
	forwarder   capture.Forwarder
	newDetector DetectorFactory
	captureRepo repository.CaptureRepository
	hub         *websocket.HubService
	archive     *storage.BufferService
	opts        Options
	logger      *logger.Logger

	mu      sync.Mutex // serializes Start and Stop
	session *session
}

func NewManager(deps Deps, opts Options, logger *logger.Logger) *Manager {
	return &Manager{
		cameras:     deps.Cameras,
		encoder:     deps.Encoder,
		forwarder:   deps.Forwarder,
		newDetector: deps.NewDetector,
		captureRepo: deps.Repository,
		hub:         deps.Hub,
		archive:     deps.Archive,
		opts:        opts,
		logger:      logger,
	}
}

// Start opens the requested cameras and begins a new session. A running
// session is stopped first.
func (m *Manager) Start(ctx context.Context, req dto.StartRequest) (*dto.StartResponse, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.isRunning() {
		m.logger.Info("🔁 Restarting capture session")
		m.stopLocked("restarted")
	}

	det, err := m.newDetector(ctx)
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}

	ids, gen, err := m.cameras.Start(req.CameraIndices, req.SkipBuiltin())
	if err != nil {
		closeDetector(det)
		return nil, err
	}

	now := time.Now()
	sess := newSession(req, now)
	sess.cameras = ids
	sess.detector = det
	sess.pool = capture.NewPool(m.forwarder, func(ev model.CaptureEvent) { m.record(sess, ev) },
		m.opts.ForwardWorkers, m.opts.ForwardQueue, m.logger)

	scheduler := capture.NewScheduler(capture.Config{
		DwellDelay:  m.opts.DwellDelay,
		MaxRuntime:  m.opts.MaxRuntime,
		MaxCaptures: m.opts.MaxCaptures,
		Quality:     m.opts.CaptureQuality,
		LocationID:  req.LocationID,
		ModelID:     req.ModelID,
		Direction:   req.Direction,
	}, m.encoder, sess.pool, m.logger, now)

	loopCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	m.session = sess
	go m.detectLoop(loopCtx, sess, scheduler, gen)

	streams := make([]string, 0, len(ids))
	for _, id := range ids {
		streams = append(streams, fmt.Sprintf("/frame_raw?cam=%d", id))
	}

	m.logger.Info("🎬 Session started at location %s (%s), cameras %v, generation %d", req.LocationID, req.Direction, ids, gen)
	return &dto.StartResponse{
		Opened:     ids,
		Streams:    streams,
		Generation: gen,
		LocationID: req.LocationID,
	}, nil
}

// detectLoop is the single consumer of the camera slots. It owns the
// trackers and the scheduler.
func (m *Manager) detectLoop(ctx context.Context, sess *session, scheduler *capture.Scheduler, gen uint64) {
	defer close(sess.done)

	trackers := make(map[int]*tracking.Tracker, len(sess.cameras))
	lastSeen := make(map[int]time.Time, len(sess.cameras))
	for _, id := range sess.cameras {
		trackers[id] = tracking.New(id, m.opts.Tracking)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if scheduler.Exhausted(time.Now()) {
			reason := fmt.Sprintf("bounds reached after %d capture(s)", scheduler.Captures())
			m.logger.Info("⏹️  Session %s", reason)
			go m.stopSession(sess, reason)
			return
		}

		for _, id := range sess.cameras {
			f, ok := m.cameras.Latest(id)
			if !ok || !f.NewerThan(lastSeen[id], gen) {
				continue // nothing new, slow frames are simply skipped
			}
			lastSeen[id] = f.Timestamp

			dets, err := sess.detector.Detect(ctx, f)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Error("Camera %d: detection failed: %v", id, err)
				if !sleepCtx(ctx, m.opts.DetectionBackoff) {
					return
				}
				continue
			}

			now := time.Now()
			tr := trackers[id]
			tr.Update(dets, now)
			scheduler.Run(tr, f, now)
			sess.setTracks(id, tr.Len())
		}

		if !sleepCtx(ctx, m.opts.DetectionInterval) {
			return
		}
	}
}

// record is the sink of the forward pool: every finished capture event ends
// up in the session, the archive, the repository and the websocket hub.
func (m *Manager) record(sess *session, ev model.CaptureEvent) {
	if m.archive != nil {
		m.archive.AddCapture(ev)
	}
	ev.Image = nil

	if m.captureRepo != nil {
		id, err := m.captureRepo.Insert(&ev)
		if err != nil {
			m.logger.Error("Failed to store capture %s: %v", ev.Filename, err)
		} else {
			ev.ID = id
		}
	}

	sess.addEvent(ev)

	if m.hub != nil {
		m.hub.BroadcastCapture(ev)
	}
}

// Stop ends the running session. It is safe to call repeatedly; without a
// running session it returns ErrNotRunning.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil || !m.session.isRunning() {
		m.cameras.Stop()
		return ErrNotRunning
	}
	m.stopLocked("stopped")
	return nil
}

// stopSession stops sess if it is still the current session.
func (m *Manager) stopSession(sess *session, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == sess && sess.isRunning() {
		m.stopLocked(reason)
	}
}

// stopLocked releases the cameras, joins the detection loop, closes the
// forward pool and resets the frame slots, in that order.
func (m *Manager) stopLocked(reason string) {
	sess := m.session

	m.cameras.Stop()

	sess.cancel()
	select {
	case <-sess.done:
	case <-time.After(m.opts.LoopJoinTimeout):
		m.logger.Warning("Detection loop did not stop within %v", m.opts.LoopJoinTimeout)
	}

	sess.pool.Close()
	gen := m.cameras.ResetSlots()
	closeDetector(sess.detector)

	if sess.markStopped(time.Now(), reason) {
		m.logger.Info("🛑 Session %s (generation now %d)", reason, gen)
	}
}

// Wait blocks until the last session has been stopped (by Stop or by
// reaching a bound) and its queued forwards have finished.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	for _, ch := range []chan struct{}{sess.done, sess.ended} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sess.pool.Wait(ctx)
}

// Done is closed when the detection loop of the current session returns.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return m.session.done
}

// Session describes the current or last session.
func (m *Manager) Session() dto.SessionInfo {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()

	if sess == nil {
		return dto.SessionInfo{Cameras: []model.Camera{}, Generation: m.cameras.Generation()}
	}
	info := sess.info()
	info.Cameras = m.cameras.Cameras()
	info.Generation = m.cameras.Generation()
	return info
}

// Frame answers a freshness query for a camera, degrading to a placeholder.
func (m *Manager) Frame(ctx context.Context, cameraID int, minTS time.Time, minGen uint64) camera.FrameResult {
	return m.cameras.Frame(ctx, cameraID, minTS, minGen)
}

func (m *Manager) ListCameras(usbOnly bool) []int {
	return m.cameras.ListCameras(usbOnly)
}

func (m *Manager) Cameras() *camera.Manager {
	return m.cameras
}

func closeDetector(d detection.Detector) {
	if c, ok := d.(io.Closer); ok {
		c.Close()
	}
}

// sleepCtx waits for d and reports false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
