package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gatecam/internal/config"
	"gatecam/internal/logger"
	"gatecam/internal/repository/sqlite"
	"gatecam/internal/route"
	"gatecam/internal/service"
	"gatecam/internal/service/ai"
	"gatecam/internal/service/camera"
	"gatecam/internal/service/capture"
	"gatecam/internal/service/detection"
	"gatecam/internal/service/storage"
	"gatecam/internal/service/stream"
	"gatecam/internal/service/websocket"
	"gatecam/internal/vision"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config        *config.Config
	logger        *logger.Logger
	db            *sqlite.DB
	captureRepo   *sqlite.CaptureRepository
	bufferService *storage.BufferService
	hubService    *websocket.HubService
	broadcaster   *stream.Broadcaster
	manager       *service.Manager
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.NewLogger(cfg)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	captureRepo := sqlite.NewCaptureRepository(db)

	var buffer *storage.BufferService
	if cfg.CaptureDirectory != "" {
		buffer = storage.NewBufferService(cfg.CaptureDirectory, cfg.CaptureBufferLimit, log)
	}
	hub := websocket.NewHubService(log)
	broadcaster := stream.NewBroadcaster(cfg.DisplayFPS)

	cameras := NewCameraManager(cfg, log)
	cameras.SetListener(broadcaster.Publish)

	mng := service.NewManager(service.Deps{
		Cameras:     cameras,
		Encoder:     vision.Encoder{},
		Forwarder:   capture.NewHTTPForwarder(cfg.ForwardURL, cfg.ForwardTimeout),
		NewDetector: DetectorFactory(cfg, log),
		Repository:  captureRepo,
		Hub:         hub,
		Archive:     buffer,
	}, service.OptionsFromConfig(cfg), log)

	return &App{
		config:        cfg,
		logger:        log,
		db:            db,
		captureRepo:   captureRepo,
		bufferService: buffer,
		hubService:    hub,
		broadcaster:   broadcaster,
		manager:       mng,
	}, nil
}

// NewCameraManager builds the gocv-backed camera manager from the configuration.
func NewCameraManager(cfg *config.Config, log *logger.Logger) *camera.Manager {
	opts := camera.DefaultOptions()
	opts.DisplayWidth = cfg.DisplayWidth
	opts.DisplayQuality = cfg.JPEGQualityDisplay
	opts.DisplayFPS = cfg.DisplayFPS
	opts.MaxProbeIndex = cfg.MaxProbeIndex
	opts.FrameWait = cfg.FrameWait
	opts.PollInterval = cfg.FramePollInterval
	opts.Staleness = cfg.FrameStaleness
	opts.JoinTimeout = cfg.JoinTimeout

	return camera.NewManager(vision.NewOpener(), vision.Encoder{}, vision.Placeholder, opts, log)
}

// DetectorFactory returns the detector constructor selected by DETECTOR.
// Both variants keep only vehicle classes above the configured confidence.
func DetectorFactory(cfg *config.Config, log *logger.Logger) service.DetectorFactory {
	return func(ctx context.Context) (detection.Detector, error) {
		switch cfg.Detector {
		case "remote":
			if cfg.RemoteDetectorURL == "" {
				return nil, fmt.Errorf("%w: REMOTE_DETECTOR_URL is empty", detection.ErrNotReady)
			}
			d := detection.NewRemoteDetector(cfg.RemoteDetectorURL, nil)
			return detection.Filtered(d, cfg.DetectionConfidence, detection.VehicleLabels), nil
		case "local", "":
			d, err := ai.NewDetectorService(cfg, log)
			if err != nil {
				return nil, err
			}
			return detection.Filtered(d, cfg.DetectionConfidence, detection.VehicleLabels), nil
		default:
			return nil, fmt.Errorf("unknown detector %q", cfg.Detector)
		}
	}
}

// Run serves HTTP until ctx is cancelled, then stops the session and shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.bufferService != nil {
		go a.bufferService.Run(ctx, a.config.CaptureFlushInterval)
	}
	go a.hubService.Run(ctx)

	router := route.SetupRoutes(a.manager, a.broadcaster, a.hubService, a.captureRepo, a.logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.config.Port),
		Handler: router,
	}

	fmt.Printf("🚀 Vehicle Capture Server\n")
	fmt.Printf("📍 URL: http://localhost:%d\n", a.config.Port)
	fmt.Printf("🤖 Detector: %s\n", a.config.Detector)
	if a.config.ForwardURL != "" {
		fmt.Printf("📤 Forwarding to: %s\n", a.config.ForwardURL)
	}
	if a.bufferService != nil {
		fmt.Printf("📁 Captures: %s\n", a.bufferService.Dir())
	}
	a.logger.Info("Server listening on %s", server.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.shutdownSession()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	a.shutdownSession()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (a *App) shutdownSession() {
	if err := a.manager.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
		a.logger.Error("Failed to stop session: %v", err)
	}
}

// Close releases the database and log files.
func (a *App) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Close()
}
