package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"
)

// Job is one capture waiting to be forwarded.
type Job struct {
	EventID  string
	TrackID  string
	CameraID int
	Image    []byte
	Meta     Metadata
	At       time.Time
}

// Sink receives every finished capture event, forwarded or not.
type Sink func(model.CaptureEvent)

func (j Job) event(status model.CaptureStatus, code int, err error) model.CaptureEvent {
	ev := model.CaptureEvent{
		EventID:    j.EventID,
		TrackID:    j.TrackID,
		CameraID:   j.CameraID,
		Filename:   j.Meta.Filename,
		LocationID: j.Meta.LocationID,
		ModelID:    j.Meta.ModelID,
		Direction:  j.Meta.Direction,
		Forwarded:  status == model.CaptureForwarded,
		Status:     status,
		StatusCode: code,
		At:         j.At,
		Image:      j.Image,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

// Pool forwards captures on a fixed set of workers fed by a bounded queue.
// Enqueueing never blocks: a full queue turns the job into a dropped event.
type Pool struct {
	forwarder Forwarder
	sink      Sink
	logger    *logger.Logger

	queue chan Job
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(forwarder Forwarder, sink Sink, workers, queueSize int, logger *logger.Logger) *Pool {
	p := &Pool{
		forwarder: forwarder,
		sink:      sink,
		logger:    logger,
		queue:     make(chan Job, max(queueSize, 1)),
	}

	for i := 0; i < max(workers, 1); i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Dispatch queues a job for forwarding.
func (p *Pool) Dispatch(job Job) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.emit(job.event(model.CaptureDropped, 0, errors.New("forward pool closed")))
		return
	}

	select {
	case p.queue <- job:
		p.logger.Info("📤 Capture %s queued for forwarding", job.Meta.Filename)
	default:
		p.logger.Warning("⚠️  Forward queue full - dropping capture %s", job.Meta.Filename)
		p.emit(job.event(model.CaptureDropped, 0, errors.New("forward queue full")))
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for job := range p.queue {
		p.emit(p.forward(job))
	}

	p.logger.Info("🔧 Forward worker %d stopped", id)
}

// forward makes the single attempt for a job. Failures are reported, never retried.
func (p *Pool) forward(job Job) model.CaptureEvent {
	code, err := p.forwarder.Forward(context.Background(), job.Image, job.Meta)
	switch {
	case errors.Is(err, ErrNoEndpoint):
		p.logger.Info("Capture %s kept locally: %v", job.Meta.Filename, err)
		return job.event(model.CaptureSkipped, code, err)
	case err != nil:
		p.logger.Error("Forward of %s failed: %v", job.Meta.Filename, err)
		return job.event(model.CaptureFailed, code, err)
	default:
		p.logger.Info("✅ Capture %s forwarded (%d)", job.Meta.Filename, code)
		return job.event(model.CaptureForwarded, code, nil)
	}
}

func (p *Pool) emit(ev model.CaptureEvent) {
	if p.sink != nil {
		p.sink(ev)
	}
}

// Close stops accepting jobs. Queued jobs are still forwarded; use Wait to
// block until they are done. Close may be called more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Wait blocks until every worker exited after Close, or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
