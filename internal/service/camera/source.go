package camera

import (
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"
)

// FrameListener is called from the producer goroutine after every publish.
type FrameListener func(f *model.Frame)

// source is the producer goroutine of one open camera.
type source struct {
	camera   model.Camera
	gen      uint64 // generation the source was started in
	dev      Device
	enc      Encoder
	slots    *SlotStore
	opts     Options
	listener FrameListener
	logger   *logger.Logger

	stop chan struct{}
	done chan struct{}
}

func newSource(cam model.Camera, gen uint64, dev Device, enc Encoder, slots *SlotStore, opts Options, listener FrameListener, logger *logger.Logger) *source {
	return &source{
		camera:   cam,
		gen:      gen,
		dev:      dev,
		enc:      enc,
		slots:    slots,
		opts:     opts,
		listener: listener,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// run owns the device: it is released on every exit path.
func (s *source) run() {
	defer close(s.done)
	defer func() {
		if err := s.dev.Close(); err != nil {
			s.logger.Warning("Camera %d: release failed: %v", s.camera.ID, err)
		}
		s.logger.Info("📷 Camera %d released", s.camera.ID)
	}()

	interval := time.Second / time.Duration(max(s.opts.DisplayFPS, 1))
	failing := false

	for {
		if s.stopping() {
			return
		}

		img, err := s.dev.Read()
		if err != nil || empty(img) {
			if !failing {
				s.logger.Warning("Camera %d: frame read failed: %v", s.camera.ID, err)
				failing = true
			}
			if !s.sleep(s.opts.ReadBackoff) {
				return
			}
			continue
		}
		if failing {
			s.logger.Info("Camera %d: frames flowing again", s.camera.ID)
			failing = false
		}

		jpeg, err := s.enc.Encode(img, s.opts.DisplayWidth, s.opts.DisplayQuality)
		if err != nil {
			s.logger.Error("Camera %d: encode failed: %v", s.camera.ID, err)
			if !s.sleep(s.opts.ReadBackoff) {
				return
			}
			continue
		}

		if s.stopping() {
			return
		}
		w, h := scaledSize(img.Bounds(), s.opts.DisplayWidth)
		f, ok := s.slots.Publish(s.camera.ID, s.gen, img, jpeg, w, h)
		if !ok {
			s.logger.Warning("Camera %d: generation %d is over, producer exits", s.camera.ID, s.gen)
			return
		}
		if s.listener != nil {
			s.listener(f)
		}

		if !s.sleep(interval) {
			return
		}
	}
}

func (s *source) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// sleep waits for d and reports false when stop was requested meanwhile.
func (s *source) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.stop:
		return false
	case <-t.C:
		return true
	}
}

// halt signals the loop and waits up to timeout for it to exit.
func (s *source) halt(timeout time.Duration) bool {
	close(s.stop)
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
