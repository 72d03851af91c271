package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"gatecam/internal/dto"
	"gatecam/internal/model"
)

// CaptureRepository implements repository.CaptureRepository for SQLite.
type CaptureRepository struct {
	db *DB
}

// NewCaptureRepository creates a new SQLite capture repository.
func NewCaptureRepository(db *DB) *CaptureRepository {
	return &CaptureRepository{db: db}
}

const captureColumns = `id, event_id, track_id, camera_id, filename, location_id, model_id, direction,
	forwarded, status, status_code, error, captured_at`

// Insert records a finished capture event. A track can be recorded only once.
func (r *CaptureRepository) Insert(ev *model.CaptureEvent) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO captures (event_id, track_id, camera_id, filename, location_id, model_id, direction,
			forwarded, status, status_code, error, captured_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.EventID, ev.TrackID, ev.CameraID, ev.Filename, ev.LocationID, ev.ModelID, ev.Direction,
		ev.Forwarded, string(ev.Status), ev.StatusCode, ev.Error, ev.At.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert capture: %w", err)
	}

	return result.LastInsertId()
}

// GetByTrackID retrieves the capture of a track, or nil when there is none.
func (r *CaptureRepository) GetByTrackID(trackID string) (*model.CaptureEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRow(`SELECT `+captureColumns+` FROM captures WHERE track_id = ?`, trackID)
	ev, err := scanCapture(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return ev, nil
}

func whereClause(filter *dto.CaptureFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.CameraID != nil {
		query += " AND camera_id = ?"
		args = append(args, *filter.CameraID)
	}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}

	if filter.LocationID != "" {
		query += " AND location_id = ?"
		args = append(args, filter.LocationID)
	}

	if !filter.After.IsZero() {
		query += " AND captured_at >= ?"
		args = append(args, filter.After.UTC())
	}

	if !filter.Before.IsZero() {
		query += " AND captured_at <= ?"
		args = append(args, filter.Before.UTC())
	}

	return query, args
}

// GetAll retrieves capture events matching the filter, newest first.
func (r *CaptureRepository) GetAll(filter *dto.CaptureFilter) ([]model.CaptureEvent, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)
	query := `SELECT ` + captureColumns + ` FROM captures` + where + ` ORDER BY captured_at DESC, id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	events := []model.CaptureEvent{}
	for rows.Next() {
		ev, err := scanCapture(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capture: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// GetTotalCount returns the number of capture events matching the filter.
func (r *CaptureRepository) GetTotalCount(filter *dto.CaptureFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereClause(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM captures`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count captures: %w", err)
	}
	return count, nil
}

// GetStats returns capture counts per status and per camera.
func (r *CaptureRepository) GetStats() (*dto.CaptureStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	stats := &dto.CaptureStats{
		PerStatus: make(map[model.CaptureStatus]int),
		PerCamera: make(map[int]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM captures`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count captures: %w", err)
	}

	rows, err := r.db.Conn().Query(`SELECT status, COUNT(*) FROM captures GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to query status counts: %w", err)
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.PerStatus[model.CaptureStatus(status)] = count
	}
	rows.Close()

	rows, err = r.db.Conn().Query(`SELECT camera_id, COUNT(*) FROM captures GROUP BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query camera counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var camera, count int
		if err := rows.Scan(&camera, &count); err != nil {
			return nil, fmt.Errorf("failed to scan camera count: %w", err)
		}
		stats.PerCamera[camera] = count
	}

	return stats, rows.Err()
}

// DeleteAll removes every capture record.
func (r *CaptureRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM captures`); err != nil {
		return fmt.Errorf("failed to delete captures: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row scanner) (*model.CaptureEvent, error) {
	var ev model.CaptureEvent
	var status string
	if err := row.Scan(&ev.ID, &ev.EventID, &ev.TrackID, &ev.CameraID, &ev.Filename, &ev.LocationID, &ev.ModelID,
		&ev.Direction, &ev.Forwarded, &status, &ev.StatusCode, &ev.Error, &ev.At); err != nil {
		return nil, err
	}
	ev.Status = model.CaptureStatus(status)
	return &ev, nil
}
