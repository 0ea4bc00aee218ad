// Package repository defines data access interfaces for roomrec entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/roomrec/internal/models"
)

// RecordingRepository defines operations for recording catalog persistence.
type RecordingRepository interface {
	// Create creates a new recording row.
	Create(ctx context.Context, rec *models.Recording) error
	// GetByID retrieves a recording by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Recording, error)
	// GetRecent retrieves the most recent recordings, newest first.
	GetRecent(ctx context.Context, limit int) ([]*models.Recording, error)
	// GetByRoom retrieves all recordings for a room, newest first.
	GetByRoom(ctx context.Context, room string) ([]*models.Recording, error)
	// GetFinishedBefore retrieves finished recordings created before the cutoff.
	GetFinishedBefore(ctx context.Context, cutoff time.Time) ([]*models.Recording, error)
	// Update updates an existing recording.
	Update(ctx context.Context, rec *models.Recording) error
	// MarkReaped flags a recording whose artifacts were removed by retention.
	MarkReaped(ctx context.Context, id models.ULID) error
	// Delete deletes a recording row by ID.
	Delete(ctx context.Context, id models.ULID) error
}
