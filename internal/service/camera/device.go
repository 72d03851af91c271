package camera

import (
	"errors"
	"fmt"
	"image"
	"runtime"
)

var (
	// ErrUnavailable means no backend strategy could open the device index.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrNoCamera means a start request could not open a single camera.
	ErrNoCamera = errors.New("no camera available")
)

// Backend names a capture API strategy tried when opening a device.
type Backend string

const (
	BackendAny          Backend = "any"
	BackendV4L2         Backend = "v4l2"
	BackendDShow        Backend = "dshow"
	BackendMSMF         Backend = "msmf"
	BackendAVFoundation Backend = "avfoundation"
)

// DefaultBackends is the ordered strategy list for the running platform.
func DefaultBackends() []Backend {
	switch runtime.GOOS {
	case "windows":
		return []Backend{BackendDShow, BackendMSMF, BackendAny}
	case "darwin":
		return []Backend{BackendAVFoundation, BackendAny}
	default:
		return []Backend{BackendV4L2, BackendAny}
	}
}

// Device is an opened capture handle.
type Device interface {
	// Read grabs one frame. A nil image or an error is a transient failure.
	Read() (image.Image, error)
	// Configure requests a resolution and frame rate and returns the frame
	// rate the device reports afterwards.
	Configure(width, height int, fps float64) float64
	Close() error
}

// DeviceOpener opens capture devices by index using a backend strategy.
type DeviceOpener interface {
	Open(index int, backend Backend) (Device, error)
	Backends() []Backend
}

// Encoder turns raw frames into JPEG bytes, downscaling to maxWidth when the
// frame is wider (0 keeps the original size).
type Encoder interface {
	Encode(img image.Image, maxWidth, quality int) ([]byte, error)
}

const (
	openFlushFrames  = 10
	startFlushFrames = 12
)

type resolution struct {
	width, height int
}

var (
	preferredResolution = resolution{1280, 720}
	fallbackResolution  = resolution{640, 480}
)

const (
	targetFPS  = 60.0
	minHighFPS = 59.0
)

// openDevice tries every backend strategy for the index in order. Each
// attempt flushes stale frames and must then read a non-empty frame.
func openDevice(opener DeviceOpener, index int) (Device, Backend, error) {
	var lastErr error
	for _, backend := range opener.Backends() {
		dev, err := opener.Open(index, backend)
		if err != nil {
			lastErr = err
			continue
		}

		flush(dev, openFlushFrames)
		img, err := dev.Read()
		if err == nil && !empty(img) {
			return dev, backend, nil
		}
		if err == nil {
			err = errors.New("empty frame")
		}
		lastErr = fmt.Errorf("%s: %w", backend, err)
		dev.Close()
	}

	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: index %d: %v", ErrUnavailable, index, lastErr)
	}
	return nil, "", fmt.Errorf("%w: index %d", ErrUnavailable, index)
}

// configure asks for 720p60 and drops to 480p when the device cannot keep up.
func configure(dev Device) resolution {
	if fps := dev.Configure(preferredResolution.width, preferredResolution.height, targetFPS); fps >= minHighFPS {
		return preferredResolution
	}
	dev.Configure(fallbackResolution.width, fallbackResolution.height, targetFPS)
	return fallbackResolution
}

func flush(dev Device, n int) {
	for i := 0; i < n; i++ {
		dev.Read()
	}
}

func empty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}

// scaledSize returns the frame size after downscaling to maxWidth.
func scaledSize(b image.Rectangle, maxWidth int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	return w, h
}
