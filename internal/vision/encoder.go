package vision

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"
)

// Encoder compresses frames to JPEG with OpenCV.
type Encoder struct{}

func (Encoder) Encode(img image.Image, maxWidth, quality int) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	if maxWidth > 0 && mat.Cols() > maxWidth {
		resized := gocv.NewMat()
		defer resized.Close()
		height := mat.Rows() * maxWidth / mat.Cols()
		gocv.Resize(mat, &resized, image.Pt(maxWidth, height), 0, 0, gocv.InterpolationArea)
		return encodeMat(resized, quality)
	}
	return encodeMat(mat, quality)
}

func encodeMat(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

const (
	placeholderWidth  = 640
	placeholderHeight = 480
)

var placeholders sync.Map // camera id -> []byte

// Placeholder renders the black "WAITING..." frame served while a camera has
// no fresh data. Images are cached per camera.
func Placeholder(cameraID int) []byte {
	if buf, ok := placeholders.Load(cameraID); ok {
		return buf.([]byte)
	}

	mat := gocv.NewMatWithSize(placeholderHeight, placeholderWidth, gocv.MatTypeCV8UC3)
	defer mat.Close()
	mat.SetTo(gocv.NewScalar(0, 0, 0, 0))

	white := color.RGBA{R: 255, G: 255, B: 255, A: 0}
	gocv.PutText(&mat, fmt.Sprintf("WAITING... CAM %d", cameraID), image.Pt(150, placeholderHeight/2), gocv.FontHersheySimplex, 1.0, white, 2)

	buf, err := encodeMat(mat, 70)
	if err != nil {
		return nil
	}
	placeholders.Store(cameraID, buf)
	return buf
}
