package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gatecam/internal/logger"
	"gatecam/internal/model"
)

const (
	// DefaultBufferLimit caps the captures held in memory between flushes.
	DefaultBufferLimit = 32
	// DefaultFlushInterval defines how often buffered captures are written to disk.
	DefaultFlushInterval = 10 * time.Second
)

type bufferedCapture struct {
	filename string
	data     []byte
}

// BufferService keeps a local copy of every capture image. Images are
// buffered in memory and written to disk periodically and when Run ends.
type BufferService struct {
	dir    string
	limit  int
	images []bufferedCapture
	mu     sync.Mutex
	logger *logger.Logger
}

func NewBufferService(dir string, limit int, logger *logger.Logger) *BufferService {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &BufferService{
		dir:    dir,
		limit:  limit,
		images: make([]bufferedCapture, 0, limit),
		logger: logger,
	}
}

// Run flushes the buffer every interval until ctx ends, then flushes once more.
func (s *BufferService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.FlushImages()
			return
		case <-ticker.C:
			s.FlushImages()
		}
	}
}

// AddCapture buffers the image of a capture event. Events without an image
// are ignored. When the buffer is full the image is flushed right away.
func (s *BufferService) AddCapture(ev model.CaptureEvent) {
	if len(ev.Image) == 0 || ev.Filename == "" {
		return
	}

	s.mu.Lock()
	s.images = append(s.images, bufferedCapture{filename: ev.Filename, data: ev.Image})
	full := len(s.images) >= s.limit
	s.mu.Unlock()

	if full {
		s.FlushImages()
	}
}

// FlushImages writes buffered images to disk and returns how many were saved.
func (s *BufferService) FlushImages() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.images) == 0 {
		return 0
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return 0
	}

	savedCount := 0
	for _, image := range s.images {
		fullpath := filepath.Join(s.dir, filepath.Base(image.filename))
		if err := os.WriteFile(fullpath, image.data, 0644); err != nil {
			s.logger.Error("Error saving capture %s: %v", image.filename, err)
			continue
		}
		savedCount++
	}

	s.logger.Info("💾 Flushed %d captures to %s", savedCount, s.dir)
	clear(s.images)
	s.images = s.images[:0]
	return savedCount
}

// Dir is the directory captures are written to.
func (s *BufferService) Dir() string {
	return s.dir
}
