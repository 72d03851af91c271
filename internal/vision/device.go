// Package vision binds the camera pipeline to OpenCV through gocv.
package vision

import (
	"errors"
	"fmt"
	"image"

	"gatecam/internal/service/camera"

	"gocv.io/x/gocv"
)

var errReadFailed = errors.New("read returned no frame")

var backendAPI = map[camera.Backend]gocv.VideoCaptureAPI{
	camera.BackendAny:          gocv.VideoCaptureAny,
	camera.BackendV4L2:         gocv.VideoCaptureV4L2,
	camera.BackendDShow:        gocv.VideoCaptureDshow,
	camera.BackendMSMF:         gocv.VideoCaptureMSMF,
	camera.BackendAVFoundation: gocv.VideoCaptureAVFoundation,
}

// Opener opens local capture devices with OpenCV.
type Opener struct {
	backends []camera.Backend
}

func NewOpener() *Opener {
	return &Opener{backends: camera.DefaultBackends()}
}

func (o *Opener) Backends() []camera.Backend {
	return o.backends
}

func (o *Opener) Open(index int, backend camera.Backend) (camera.Device, error) {
	api, ok := backendAPI[backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	vc, err := gocv.OpenVideoCaptureWithAPI(index, api)
	if err != nil {
		return nil, fmt.Errorf("open camera %d (%s): %w", index, backend, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d (%s): not opened", index, backend)
	}
	vc.Set(gocv.VideoCaptureBufferSize, 1) // Minimal buffer

	return &device{vc: vc, mat: gocv.NewMat()}, nil
}

// device is used only by its producer goroutine.
type device struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (d *device) Read() (image.Image, error) {
	if ok := d.vc.Read(&d.mat); !ok || d.mat.Empty() {
		return nil, errReadFailed
	}
	return d.mat.ToImage()
}

func (d *device) Configure(width, height int, fps float64) float64 {
	d.vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	d.vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	d.vc.Set(gocv.VideoCaptureFPS, fps)
	return d.vc.Get(gocv.VideoCaptureFPS)
}

func (d *device) Close() error {
	d.mat.Close()
	return d.vc.Close()
}
