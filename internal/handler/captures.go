package handler

import (
	"net/http"
	"strconv"
	"time"

	"gatecam/internal/dto"
	"gatecam/internal/logger"
	"gatecam/internal/model"
	"gatecam/internal/repository"
)

const defaultCaptureLimit = 50

// GetCapturesHandler returns recorded capture events, newest first.
// Query: camera, status, location_id, after, before (RFC 3339 or 2006-01-02), limit, offset.
func GetCapturesHandler(captureRepo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := &dto.CaptureFilter{
			Status:     model.CaptureStatus(q.Get("status")),
			LocationID: q.Get("location_id"),
			After:      parseDate(q.Get("after")),
			Before:     parseDate(q.Get("before")),
			Limit:      atoiDefault(q.Get("limit"), defaultCaptureLimit),
			Offset:     atoiDefault(q.Get("offset"), 0),
		}
		if filter.Limit == 0 {
			filter.Limit = defaultCaptureLimit
		}
		if v := q.Get("camera"); v != "" {
			camera, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "camera must be an integer")
				return
			}
			filter.CameraID = &camera
		}

		items, err := captureRepo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying captures from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		total, err := captureRepo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting captures: %v", err)
			total = len(items)
		}

		writeJSON(w, http.StatusOK, dto.CaptureList{
			Items:  items,
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		})
	}
}

// GetCaptureByTrackHandler returns the capture of one track (?track_id=).
func GetCaptureByTrackHandler(captureRepo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trackID := r.URL.Query().Get("track_id")
		if trackID == "" {
			writeError(w, http.StatusBadRequest, "track_id is required")
			return
		}

		ev, err := captureRepo.GetByTrackID(trackID)
		if err != nil {
			logger.Error("Error reading capture of %s: %v", trackID, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if ev == nil {
			writeError(w, http.StatusNotFound, "capture not found")
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// CaptureStatsHandler returns capture counts per status and camera.
func CaptureStatsHandler(captureRepo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := captureRepo.GetStats()
		if err != nil {
			logger.Error("Error reading capture stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// ClearCapturesHandler deletes the capture history.
func ClearCapturesHandler(captureRepo repository.CaptureRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := captureRepo.DeleteAll(); err != nil {
			logger.Error("Error clearing captures: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		logger.Info("Capture history cleared")
		w.WriteHeader(http.StatusNoContent)
	}
}

// parseDate accepts RFC 3339 timestamps or plain dates ("2006-01-02").
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}
