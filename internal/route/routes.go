package route

import (
	"net/http"

	"gatecam/internal/handler"
	"gatecam/internal/logger"
	"gatecam/internal/middleware"
	"gatecam/internal/repository"
	"gatecam/internal/service"
	"gatecam/internal/service/stream"
	"gatecam/internal/service/websocket"
)

// SetupRoutes registers the camera, capture and log endpoints and wraps the
// mux with the CORS middleware.
func SetupRoutes(manager *service.Manager, broadcaster *stream.Broadcaster, hub *websocket.HubService,
	captureRepo repository.CaptureRepository, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Frames
	mux.HandleFunc("/frame_raw", handler.FrameRawHandler(manager))
	mux.HandleFunc("/api/stream", handler.StreamHandler(broadcaster))

	// Cameras and session
	mux.HandleFunc("/api/cameras", handler.ListCamerasHandler(manager))
	mux.HandleFunc("/api/cameras/start", handler.StartCamerasHandler(manager, log))
	mux.HandleFunc("/api/cameras/stop", handler.StopCamerasHandler(manager, log))
	mux.HandleFunc("/api/session", handler.SessionHandler(manager))

	// Capture history
	mux.HandleFunc("/api/events", handler.EventsWebsocketHandler(hub, log))
	mux.HandleFunc("/api/captures", handler.GetCapturesHandler(captureRepo, log))
	mux.HandleFunc("/api/captures/track", handler.GetCaptureByTrackHandler(captureRepo, log))
	mux.HandleFunc("/api/captures/stats", handler.CaptureStatsHandler(captureRepo, log))
	mux.HandleFunc("/api/captures/clear", handler.ClearCapturesHandler(captureRepo, log))

	// Log endpoints
	for _, level := range logger.Levels {
		mux.HandleFunc("/logs/"+level, handler.ShowLogsHandler(log, level))
		mux.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(log, level))
	}

	return middleware.CORSMiddleware(mux)
}
