// Package stream serves camera slots as MJPEG over HTTP.
package stream

import (
	"net/http"
	"sync"
	"time"

	"gatecam/internal/model"

	"github.com/hybridgroup/mjpeg"
)

// Broadcaster keeps one MJPEG stream per camera and feeds it from the
// producer goroutines.
type Broadcaster struct {
	mu       sync.Mutex
	streams  map[int]*mjpeg.Stream
	interval time.Duration
}

func NewBroadcaster(fps int) *Broadcaster {
	interval := 50 * time.Millisecond
	if fps > 0 {
		interval = time.Second / time.Duration(fps)
	}
	return &Broadcaster{
		streams:  make(map[int]*mjpeg.Stream),
		interval: interval,
	}
}

func (b *Broadcaster) stream(cameraID int) *mjpeg.Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.streams[cameraID]
	if !ok {
		s = mjpeg.NewStream()
		s.FrameInterval = b.interval
		b.streams[cameraID] = s
	}
	return s
}

// Publish is a camera.FrameListener.
func (b *Broadcaster) Publish(f *model.Frame) {
	if f == nil || len(f.JPEG) == 0 {
		return
	}
	b.stream(f.CameraID).UpdateJPEG(f.JPEG)
}

// Handler returns the MJPEG handler of a camera. Clients connecting before
// the camera starts simply wait for the first frame.
func (b *Broadcaster) Handler(cameraID int) http.Handler {
	return b.stream(cameraID)
}
