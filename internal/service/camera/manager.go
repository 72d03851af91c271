package camera

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"
)

type Options struct {
	DisplayWidth   int
	DisplayQuality int
	DisplayFPS     int
	MaxProbeIndex  int
	ReadBackoff    time.Duration

	FrameWait    time.Duration // freshness query deadline
	PollInterval time.Duration
	Staleness    time.Duration
	JoinTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		DisplayWidth:   640,
		DisplayQuality: 60,
		DisplayFPS:     60,
		MaxProbeIndex:  8,
		ReadBackoff:    5 * time.Millisecond,
		FrameWait:      300 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
		Staleness:      500 * time.Millisecond,
		JoinTimeout:    time.Second,
	}
}

// PlaceholderFunc renders the JPEG served when no fresh frame is available.
type PlaceholderFunc func(cameraID int) []byte

// FrameResult is the answer to a freshness query.
type FrameResult struct {
	JPEG        []byte
	Generation  uint64
	Timestamp   time.Time
	Placeholder bool
}

// Manager owns every open camera: its device, producer goroutine and slot.
type Manager struct {
	opener      DeviceOpener
	encoder     Encoder
	placeholder PlaceholderFunc
	slots       *SlotStore
	opts        Options
	logger      *logger.Logger

	mu       sync.Mutex
	sources  map[int]*source
	listener FrameListener
}

func NewManager(opener DeviceOpener, encoder Encoder, placeholder PlaceholderFunc, opts Options, logger *logger.Logger) *Manager {
	return &Manager{
		opener:      opener,
		encoder:     encoder,
		placeholder: placeholder,
		slots:       NewSlotStore(),
		opts:        opts,
		logger:      logger,
		sources:     make(map[int]*source),
	}
}

// SetListener registers a callback for every published frame. It applies to
// cameras started afterwards.
func (m *Manager) SetListener(l FrameListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = l
}

// Probe opens indices 0..MaxProbeIndex and returns those that worked. Indices
// already held by a running camera are reported without reopening them.
func (m *Manager) Probe() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeLocked()
}

func (m *Manager) probeLocked() []int {
	var found []int
	for idx := 0; idx <= m.opts.MaxProbeIndex; idx++ {
		if _, running := m.sources[idx]; running {
			found = append(found, idx)
			continue
		}
		dev, _, err := openDevice(m.opener, idx)
		if err != nil {
			continue
		}
		dev.Close()
		found = append(found, idx)
	}
	return found
}

// ListCameras probes available indices. With usbOnly the built-in camera at
// index 0 is left out unless it is the only one.
func (m *Manager) ListCameras(usbOnly bool) []int {
	return filterUSB(m.Probe(), usbOnly)
}

func filterUSB(indices []int, usbOnly bool) []int {
	if !usbOnly || len(indices) <= 1 {
		return indices
	}
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if idx != 0 {
			out = append(out, idx)
		}
	}
	return out
}

// Start replaces the running camera set. Without explicit indices every
// probed camera is used. The slots are cleared and the generation bumped
// before any producer runs, so frames of the previous set never leak into
// the new one.
func (m *Manager) Start(indices []int, usbOnly bool) ([]int, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	if len(indices) == 0 {
		indices = filterUSB(m.probeLocked(), usbOnly)
	}
	indices = slices.Clone(indices)
	slices.Sort(indices)
	indices = slices.Compact(indices)

	type opened struct {
		cam model.Camera
		dev Device
	}
	var ready []opened
	for _, idx := range indices {
		dev, backend, err := openDevice(m.opener, idx)
		if err != nil {
			m.logger.Warning("Camera %d skipped: %v", idx, err)
			continue
		}
		res := configure(dev)
		flush(dev, startFlushFrames)
		ready = append(ready, opened{
			cam: model.Camera{
				ID:           idx,
				Backend:      string(backend),
				TargetWidth:  res.width,
				TargetHeight: res.height,
				TargetFPS:    targetFPS,
				Open:         true,
			},
			dev: dev,
		})
	}

	gen := m.slots.Restart()
	if len(ready) == 0 {
		return nil, gen, ErrNoCamera
	}

	ids := make([]int, 0, len(ready))
	for _, o := range ready {
		src := newSource(o.cam, gen, o.dev, m.encoder, m.slots, m.opts, m.listener, m.logger)
		m.sources[o.cam.ID] = src
		go src.run()
		ids = append(ids, o.cam.ID)
		m.logger.Info("📷 Camera %d started (%s, %dx%d)", o.cam.ID, o.cam.Backend, o.cam.TargetWidth, o.cam.TargetHeight)
	}
	return ids, gen, nil
}

// Stop halts every producer and waits (bounded) for each to release its
// device. Calling Stop with nothing running is a no-op.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if len(m.sources) == 0 {
		return
	}

	var wg sync.WaitGroup
	for id, src := range m.sources {
		wg.Add(1)
		go func(id int, src *source) {
			defer wg.Done()
			if !src.halt(m.opts.JoinTimeout) {
				m.logger.Warning("Camera %d did not stop within %v", id, m.opts.JoinTimeout)
			}
		}(id, src)
	}
	wg.Wait()

	clear(m.sources)
	m.logger.Info("🛑 All cameras stopped")
}

// ResetSlots clears every slot and bumps the generation.
func (m *Manager) ResetSlots() uint64 {
	return m.slots.Restart()
}

// Cameras describes the running cameras in ascending id order.
func (m *Manager) Cameras() []model.Camera {
	m.mu.Lock()
	defer m.mu.Unlock()
	cams := make([]model.Camera, 0, len(m.sources))
	for _, src := range m.sources {
		cams = append(cams, src.camera)
	}
	sort.Slice(cams, func(i, j int) bool { return cams[i].ID < cams[j].ID })
	return cams
}

// Running reports whether any camera is active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources) > 0
}

func (m *Manager) Latest(cameraID int) (*model.Frame, bool) {
	return m.slots.Latest(cameraID)
}

func (m *Manager) Generation() uint64 {
	return m.slots.Generation()
}

// Frame answers a freshness query. It waits at most FrameWait (or until ctx
// ends) for a frame newer than minTS and minGen and otherwise returns the
// placeholder image.
func (m *Manager) Frame(ctx context.Context, cameraID int, minTS time.Time, minGen uint64) FrameResult {
	ctx, cancel := context.WithTimeout(ctx, m.opts.FrameWait)
	defer cancel()

	if f, err := m.slots.Wait(ctx, cameraID, minTS, minGen, m.opts.Staleness, m.opts.PollInterval); err == nil {
		return FrameResult{JPEG: f.JPEG, Generation: f.Generation, Timestamp: f.Timestamp}
	}

	var jpeg []byte
	if m.placeholder != nil {
		jpeg = m.placeholder(cameraID)
	}
	return FrameResult{JPEG: jpeg, Generation: m.slots.Generation(), Placeholder: true}
}
