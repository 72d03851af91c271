// Package ai runs the local SSD MobileNet (COCO) model through OpenCV DNN.
package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gatecam/internal/config"
	"gatecam/internal/logger"
	"gatecam/internal/model"
	"gatecam/internal/service/detection"

	"gocv.io/x/gocv"
)

// DetectionThreshold is the minimum raw confidence kept from the network output.
const DetectionThreshold = 0.3

// DetectorService is the local detector variant. The network is not safe for
// concurrent use, so calls are serialized.
type DetectorService struct {
	net        gocv.Net
	ready      bool
	modelPath  string
	configPath string
	mu         sync.Mutex
	logger     *logger.Logger
}

var _ detection.Detector = (*DetectorService)(nil)

// NewDetectorService loads the network from the configured model files.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		return nil, err
	}
	return service, nil
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}
	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", s.configPath)
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.ready = true
	s.logger.Info("🤖 Detection network initialized (%s)", s.modelPath)
	return nil
}

// Detect runs the network on the raw frame (or the decoded JPEG when the raw
// frame is missing) and returns boxes in frame pixel coordinates.
func (s *DetectorService) Detect(ctx context.Context, frame *model.Frame) ([]model.Detection, error) {
	if frame == nil {
		return nil, fmt.Errorf("detect: nil frame")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := frameMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, detection.ErrNotReady
	}

	// Create blob with parameters that fit ssd coco net input
	blob := gocv.BlobFromImage(mat, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	defer output.Close()

	cols, rows := float32(mat.Cols()), float32(mat.Rows())
	var results []model.Detection

	// Rows of [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized
	detections := output.Reshape(1, output.Total()/7)
	defer detections.Close()
	for i := 0; i < detections.Rows(); i++ {
		confidence := detections.GetFloatAt(i, 2)
		if confidence < DetectionThreshold {
			continue
		}
		classID := int(detections.GetFloatAt(i, 1))
		results = append(results, model.Detection{
			BBox: model.BoundingBox{
				X1: float64(detections.GetFloatAt(i, 3) * cols),
				Y1: float64(detections.GetFloatAt(i, 4) * rows),
				X2: float64(detections.GetFloatAt(i, 5) * cols),
				Y2: float64(detections.GetFloatAt(i, 6) * rows),
			},
			Confidence: float64(confidence),
			Label:      getClassLabel(classID),
		})
	}

	return results, nil
}

func frameMat(frame *model.Frame) (gocv.Mat, error) {
	if frame.Raw != nil {
		mat, err := gocv.ImageToMatRGB(frame.Raw)
		if err != nil {
			return gocv.Mat{}, fmt.Errorf("convert frame: %w", err)
		}
		return mat, nil
	}

	mat, err := gocv.IMDecode(frame.JPEG, gocv.IMReadColor)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to decode image: %v", err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("decoded image is empty")
	}
	return mat, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	s.ready = false
	return s.net.Close()
}

// getClassLabel maps SSD COCO class IDs (1-based) to labels.
func getClassLabel(classID int) string {
	labels := map[int]string{
		1: "person",
		2: "bicycle",
		3: "car",
		4: "motorcycle",
		6: "bus",
		8: "truck",
	}

	if label, exists := labels[classID]; exists {
		return label
	}
	return fmt.Sprintf("class%d", classID)
}
