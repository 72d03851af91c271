package handler

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gatecam/internal/dto"
	"gatecam/internal/logger"
	"gatecam/internal/model"
	"gatecam/internal/repository/sqlite"
	"gatecam/internal/service"
	"gatecam/internal/service/camera"
	"gatecam/internal/service/capture"
	"gatecam/internal/service/detection"
	"gatecam/internal/service/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// Fakes
// ========================================

type fakeDevice struct {
	mu     sync.Mutex
	closed bool
}

func (d *fakeDevice) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("closed")
	}
	return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
}

func (d *fakeDevice) Configure(width, height int, fps float64) float64 { return fps }

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

type fakeOpener struct {
	indices map[int]bool
}

func (o *fakeOpener) Backends() []camera.Backend { return []camera.Backend{camera.BackendAny} }

func (o *fakeOpener) Open(index int, backend camera.Backend) (camera.Device, error) {
	if !o.indices[index] {
		return nil, errors.New("no device")
	}
	return &fakeDevice{}, nil
}

type fakeEncoder struct{}

func (fakeEncoder) Encode(img image.Image, maxWidth, quality int) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

type nopForwarder struct{}

func (nopForwarder) Forward(ctx context.Context, image []byte, meta capture.Metadata) (int, error) {
	return 0, capture.ErrNoEndpoint
}

var placeholderJPEG = []byte("placeholder")

func newTestManager(t *testing.T, indices ...int) *service.Manager {
	t.Helper()

	available := make(map[int]bool, len(indices))
	for _, i := range indices {
		available[i] = true
	}

	camOpts := camera.DefaultOptions()
	camOpts.DisplayFPS = 100
	camOpts.MaxProbeIndex = 2
	camOpts.FrameWait = 50 * time.Millisecond

	cams := camera.NewManager(&fakeOpener{indices: available}, fakeEncoder{},
		func(int) []byte { return placeholderJPEG }, camOpts, logger.Discard())

	m := service.NewManager(service.Deps{
		Cameras:   cams,
		Encoder:   fakeEncoder{},
		Forwarder: nopForwarder{},
		NewDetector: func(ctx context.Context) (detection.Detector, error) {
			return detection.Func(func(ctx context.Context, f *model.Frame) ([]model.Detection, error) {
				return nil, nil
			}), nil
		},
	}, service.Options{
		Tracking:          tracking.Config{},
		DwellDelay:        time.Second,
		DetectionInterval: 10 * time.Millisecond,
		LoopJoinTimeout:   time.Second,
		ForwardWorkers:    1,
		ForwardQueue:      1,
	}, logger.Discard())

	t.Cleanup(func() { m.Stop() })
	return m
}

func postJSON(t *testing.T, h http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ========================================
// Camera Handler Tests
// ========================================

func TestFrameRawHandler_PlaceholderWhenIdle(t *testing.T) {
	m := newTestManager(t, 0)

	rec := httptest.NewRecorder()
	FrameRawHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame_raw?cam=0", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Frame-Placeholder"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, placeholderJPEG, rec.Body.Bytes())
}

func TestFrameRawHandler_FreshFrameAfterStart(t *testing.T) {
	m := newTestManager(t, 0)

	rec := postJSON(t, StartCamerasHandler(m, logger.Discard()), "/api/cameras/start", `{"location_id":"gate-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.StartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []int{0}, resp.Opened)
	assert.Equal(t, []string{"/frame_raw?cam=0"}, resp.Streams)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		FrameRawHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frame_raw?cam=0", nil))
		return rec.Header().Get("X-Frame-Placeholder") == "0" && rec.Header().Get("X-Frame-Timestamp") != ""
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartCamerasHandler_Validation(t *testing.T) {
	m := newTestManager(t, 0)
	h := StartCamerasHandler(m, logger.Discard())

	rec := postJSON(t, h, "/api/cameras/start", `{"model_id":"m"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/api/cameras/start", `{"location_id":"gate-1","direction":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/api/cameras/start", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, httptest.NewRequest(http.MethodGet, "/api/cameras/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, getRec.Code)
}

func TestStartCamerasHandler_NoCamera(t *testing.T) {
	m := newTestManager(t)

	rec := postJSON(t, StartCamerasHandler(m, logger.Discard()), "/api/cameras/start", `{"location_id":"gate-1"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No webcam found")
}

func TestStopCamerasHandler_Twice(t *testing.T) {
	m := newTestManager(t, 0)

	rec := postJSON(t, StartCamerasHandler(m, logger.Discard()), "/api/cameras/start", `{"location_id":"gate-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 2; i++ {
		rec := postJSON(t, StopCamerasHandler(m, logger.Discard()), "/api/cameras/stop", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Cameras stopped"}`, rec.Body.String())
	}
}

func TestListCamerasHandler(t *testing.T) {
	m := newTestManager(t, 0, 1)

	rec := httptest.NewRecorder()
	ListCamerasHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras", nil))
	assert.JSONEq(t, `{"available":[1]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	ListCamerasHandler(m).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cameras?usb_only=0", nil))
	assert.JSONEq(t, `{"available":[0,1]}`, rec.Body.String())
}

func TestParseEpoch(t *testing.T) {
	assert.True(t, parseEpoch("").IsZero())
	assert.True(t, parseEpoch("abc").IsZero())

	got := parseEpoch("1714552203.25")
	assert.Equal(t, int64(1714552203), got.Unix())
	assert.InDelta(t, 250*time.Millisecond, time.Duration(got.Nanosecond()), float64(time.Millisecond))
}

// ========================================
// Capture Handler Tests
// ========================================

func setupCaptureRepo(t *testing.T) *sqlite.CaptureRepository {
	t.Helper()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "captures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewCaptureRepository(db)
	at := time.Date(2024, 5, 1, 8, 30, 3, 0, time.UTC)
	for i, status := range []model.CaptureStatus{model.CaptureForwarded, model.CaptureFailed, model.CaptureForwarded} {
		_, err := repo.Insert(&model.CaptureEvent{
			EventID:    "evt_" + string(rune('a'+i)),
			TrackID:    "trk_" + string(rune('a'+i)),
			CameraID:   i % 2,
			Filename:   "capture.jpg",
			LocationID: "gate-1",
			Direction:  "in",
			Forwarded:  status == model.CaptureForwarded,
			Status:     status,
			At:         at.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	return repo
}

func TestGetCapturesHandler(t *testing.T) {
	repo := setupCaptureRepo(t)
	h := GetCapturesHandler(repo, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures?status=forwarded", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list dto.CaptureList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, defaultCaptureLimit, list.Limit)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures?camera=1", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures?camera=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCaptureByTrackHandler(t *testing.T) {
	repo := setupCaptureRepo(t)
	h := GetCaptureByTrackHandler(repo, logger.Discard())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/track?track_id=trk_b", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var ev model.CaptureEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, "trk_b", ev.TrackID)
	assert.Equal(t, model.CaptureFailed, ev.Status)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/track?track_id=trk_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/track", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCaptureStatsAndClear(t *testing.T) {
	repo := setupCaptureRepo(t)

	rec := httptest.NewRecorder()
	CaptureStatsHandler(repo, logger.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/captures/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats dto.CaptureStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.PerStatus[model.CaptureFailed])

	rec = httptest.NewRecorder()
	ClearCapturesHandler(repo, logger.Discard()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/captures/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	total, err := repo.GetTotalCount(&dto.CaptureFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

// ========================================
// Log Handler Tests
// ========================================

func TestLogHandlers(t *testing.T) {
	log, err := logger.New(t.TempDir())
	require.NoError(t, err)
	defer log.Close()

	log.Info("session started at gate-1")

	rec := httptest.NewRecorder()
	ShowLogsHandler(log, "info").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "session started at gate-1")

	rec = httptest.NewRecorder()
	ClearLogsHandler(log, "info").ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/info/clear", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	data, err := os.ReadFile(filepath.Join(log.Dir(), logger.FileName("info")))
	require.NoError(t, err)
	assert.Empty(t, data)
}
