package repository

import (
	"gatecam/internal/dto"
	"gatecam/internal/model"
)

// CaptureRepository stores capture event metadata. Images are not persisted.
type CaptureRepository interface {
	// Create operations
	Insert(ev *model.CaptureEvent) (int64, error)

	// Read operations
	GetByTrackID(trackID string) (*model.CaptureEvent, error)
	GetAll(filter *dto.CaptureFilter) ([]model.CaptureEvent, error)
	GetTotalCount(filter *dto.CaptureFilter) (int, error)
	GetStats() (*dto.CaptureStats, error)

	// Delete operations
	DeleteAll() error
}
