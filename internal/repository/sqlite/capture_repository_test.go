package sqlite_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gatecam/internal/dto"
	"gatecam/internal/model"
	"gatecam/internal/repository/sqlite"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func newEvent(track string, camera int, status model.CaptureStatus, at time.Time) *model.CaptureEvent {
	return &model.CaptureEvent{
		EventID:    "evt_" + track,
		TrackID:    track,
		CameraID:   camera,
		Filename:   fmt.Sprintf("%s_cam%d_%s.jpg", at.Format("2006-01-02_15-04-05.000"), camera, track),
		LocationID: "loc-1",
		ModelID:    "model-a",
		Direction:  "in",
		Forwarded:  status == model.CaptureForwarded,
		Status:     status,
		StatusCode: 200,
		At:         at,
	}
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_Connection(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "captures.db")

	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

// ========================================
// Capture Repository Tests
// ========================================

func TestCaptureRepository_InsertAndGet(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))
	at := time.Date(2024, 5, 1, 8, 30, 3, 100e6, time.UTC)

	id, err := repo.Insert(newEvent("trk_a", 1, model.CaptureForwarded, at))
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("Expected positive ID, got %d", id)
	}

	got, err := repo.GetByTrackID("trk_a")
	if err != nil {
		t.Fatalf("GetByTrackID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected capture, got nil")
	}
	if got.CameraID != 1 || got.Status != model.CaptureForwarded || !got.Forwarded {
		t.Errorf("Unexpected capture: %+v", got)
	}
	if !got.At.Equal(at) {
		t.Errorf("Expected captured_at %v, got %v", at, got.At)
	}
}

func TestCaptureRepository_GetByTrackID_NotFound(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))

	got, err := repo.GetByTrackID("trk_missing")
	if err != nil {
		t.Fatalf("GetByTrackID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing track, got %+v", got)
	}
}

func TestCaptureRepository_OneCapturePerTrack(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))
	now := time.Now()

	if _, err := repo.Insert(newEvent("trk_dup", 0, model.CaptureFailed, now)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	second := newEvent("trk_dup", 0, model.CaptureForwarded, now)
	second.EventID = "evt_other"
	if _, err := repo.Insert(second); err == nil {
		t.Error("Expected error for second capture of the same track, got nil")
	}
}

func TestCaptureRepository_GetAll_Filters(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	events := []*model.CaptureEvent{
		newEvent("trk_1", 0, model.CaptureForwarded, base),
		newEvent("trk_2", 1, model.CaptureFailed, base.Add(time.Minute)),
		newEvent("trk_3", 1, model.CaptureForwarded, base.Add(2*time.Minute)),
		newEvent("trk_4", 2, model.CaptureDropped, base.Add(3*time.Minute)),
	}
	for _, ev := range events {
		if _, err := repo.Insert(ev); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	all, err := repo.GetAll(&dto.CaptureFilter{})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("Expected 4 captures, got %d", len(all))
	}
	if all[0].TrackID != "trk_4" {
		t.Errorf("Expected newest first, got %s", all[0].TrackID)
	}

	camera := 1
	byCamera, err := repo.GetAll(&dto.CaptureFilter{CameraID: &camera})
	if err != nil {
		t.Fatalf("GetAll by camera failed: %v", err)
	}
	if len(byCamera) != 2 {
		t.Errorf("Expected 2 captures for camera 1, got %d", len(byCamera))
	}

	forwarded, err := repo.GetTotalCount(&dto.CaptureFilter{Status: model.CaptureForwarded})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if forwarded != 2 {
		t.Errorf("Expected 2 forwarded captures, got %d", forwarded)
	}

	page, err := repo.GetAll(&dto.CaptureFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("GetAll page failed: %v", err)
	}
	if len(page) != 2 || page[0].TrackID != "trk_3" {
		t.Errorf("Unexpected page: %+v", page)
	}

	after, err := repo.GetTotalCount(&dto.CaptureFilter{After: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("GetTotalCount after failed: %v", err)
	}
	if after != 2 {
		t.Errorf("Expected 2 captures after 08:01:30, got %d", after)
	}
}

func TestCaptureRepository_StatsAndDeleteAll(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))
	now := time.Now()

	repo.Insert(newEvent("trk_1", 0, model.CaptureForwarded, now))
	repo.Insert(newEvent("trk_2", 0, model.CaptureFailed, now))
	repo.Insert(newEvent("trk_3", 3, model.CaptureForwarded, now))

	stats, err := repo.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected total 3, got %d", stats.Total)
	}
	if stats.PerStatus[model.CaptureForwarded] != 2 || stats.PerStatus[model.CaptureFailed] != 1 {
		t.Errorf("Unexpected status counts: %v", stats.PerStatus)
	}
	if stats.PerCamera[0] != 2 || stats.PerCamera[3] != 1 {
		t.Errorf("Unexpected camera counts: %v", stats.PerCamera)
	}

	if err := repo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	count, _ := repo.GetTotalCount(nil)
	if count != 0 {
		t.Errorf("Expected 0 captures after DeleteAll, got %d", count)
	}
}

func TestCaptureRepository_ConcurrentInserts(t *testing.T) {
	repo := sqlite.NewCaptureRepository(setupTestDB(t))

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			if _, err := repo.Insert(newEvent(fmt.Sprintf("trk_c%d", idx), idx%2, model.CaptureForwarded, time.Now())); err != nil {
				t.Errorf("Concurrent insert %d failed: %v", idx, err)
			}
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	count, _ := repo.GetTotalCount(&dto.CaptureFilter{})
	if count != 10 {
		t.Errorf("Expected 10 captures, got %d", count)
	}
}
