package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/roomrec/internal/models"
	"gorm.io/gorm"
)

// recordingRepo implements RecordingRepository using GORM.
type recordingRepo struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new RecordingRepository.
func NewRecordingRepository(db *gorm.DB) *recordingRepo {
	return &recordingRepo{db: db}
}

// Create creates a new recording row.
func (r *recordingRepo) Create(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("creating recording: %w", err)
	}
	return nil
}

// GetByID retrieves a recording by ID.
func (r *recordingRepo) GetByID(ctx context.Context, id models.ULID) (*models.Recording, error) {
	var rec models.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting recording by ID: %w", err)
	}
	return &rec, nil
}

// GetRecent retrieves the most recent recordings, newest first.
func (r *recordingRepo) GetRecent(ctx context.Context, limit int) ([]*models.Recording, error) {
	if limit <= 0 {
		limit = 100
	}

	var recs []*models.Recording
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("getting recent recordings: %w", err)
	}
	return recs, nil
}

// GetByRoom retrieves all recordings for a room, newest first.
func (r *recordingRepo) GetByRoom(ctx context.Context, room string) ([]*models.Recording, error) {
	var recs []*models.Recording
	if err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("getting recordings by room: %w", err)
	}
	return recs, nil
}

// GetFinishedBefore retrieves finished recordings created before the cutoff.
// Reaped and failed recordings are excluded; retention only removes artifacts
// that completed post-processing and still exist on disk.
func (r *recordingRepo) GetFinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.Recording, error) {
	var recs []*models.Recording
	if err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", models.RecordingStateFinished, cutoff).
		Order("created_at ASC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("getting recordings before cutoff: %w", err)
	}
	return recs, nil
}

// Update updates an existing recording.
func (r *recordingRepo) Update(ctx context.Context, rec *models.Recording) error {
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("updating recording: %w", err)
	}
	return nil
}

// MarkReaped flags a recording whose artifacts were removed by retention.
func (r *recordingRepo) MarkReaped(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Recording{}).
		Where("id = ?", id).
		Update("state", models.RecordingStateReaped)
	if result.Error != nil {
		return fmt.Errorf("marking recording reaped: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("marking recording reaped: %w", gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete deletes a recording row by ID.
func (r *recordingRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Recording{}).Error; err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	return nil
}
