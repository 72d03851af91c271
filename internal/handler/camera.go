package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"gatecam/internal/dto"
	"gatecam/internal/logger"
	"gatecam/internal/service"
	"gatecam/internal/service/camera"
	"gatecam/internal/service/stream"
)

// FrameRawHandler serves the latest JPEG of a camera (?cam=<id>). With
// min_ts (epoch seconds) and min_gen it waits briefly for a fresher frame and
// falls back to a placeholder image.
func FrameRawHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		camID := atoiDefault(q.Get("cam"), 0)
		minTS := parseEpoch(q.Get("min_ts"))
		minGen, _ := strconv.ParseUint(q.Get("min_gen"), 10, 64)

		res := manager.Frame(r.Context(), camID, minTS, minGen)

		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("X-Frame-Generation", strconv.FormatUint(res.Generation, 10))
		if res.Placeholder {
			w.Header().Set("X-Frame-Placeholder", "1")
		} else {
			w.Header().Set("X-Frame-Placeholder", "0")
			w.Header().Set("X-Frame-Timestamp", formatEpoch(res.Timestamp))
		}
		w.WriteHeader(http.StatusOK)
		w.Write(res.JPEG)
	}
}

// ListCamerasHandler probes the available camera indices. usb_only defaults to 1.
func ListCamerasHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usbOnly := r.URL.Query().Get("usb_only") != "0"
		available := manager.ListCameras(usbOnly)
		if available == nil {
			available = []int{}
		}
		writeJSON(w, http.StatusOK, dto.CamerasResponse{Available: available})
	}
}

// StartCamerasHandler starts a capture session.
func StartCamerasHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req dto.StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		resp, err := manager.Start(r.Context(), req)
		switch {
		case errors.Is(err, dto.ErrMissingLocation), errors.Is(err, dto.ErrBadDirection):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, camera.ErrNoCamera):
			writeError(w, http.StatusNotFound, "No webcam found")
		case err != nil:
			logger.Error("Failed to start cameras: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeJSON(w, http.StatusOK, resp)
		}
	}
}

// StopCamerasHandler stops the running session. Stopping twice is fine.
func StopCamerasHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := manager.Stop(); err != nil && !errors.Is(err, service.ErrNotRunning) {
			logger.Error("Failed to stop cameras: %v", err)
		}
		writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Cameras stopped"})
	}
}

// SessionHandler reports the current session and its per-event statuses.
func SessionHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Session())
	}
}

// StreamHandler serves a camera as an MJPEG stream (?cam=<id>).
func StreamHandler(broadcaster *stream.Broadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camID := atoiDefault(r.URL.Query().Get("cam"), 0)
		broadcaster.Handler(camID).ServeHTTP(w, r)
	}
}

func parseEpoch(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	sec, err := strconv.ParseFloat(v, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

func formatEpoch(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// atoiDefault parses a non-negative integer, returning def on failure.
func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
