// Package migrations provides database migration management for roomrec.
package migrations

import (
	"github.com/jmylchreest/roomrec/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
//
// - 001: Create the recordings catalog table
func AllMigrations() []Migration {
	return []Migration{
		migration001RecordingsCatalog(),
	}
}

// migration001RecordingsCatalog creates the recordings table that stores one
// row per finished (or failed) room recording.
func migration001RecordingsCatalog() Migration {
	return Migration{
		Version:     "001",
		Description: "Create recordings catalog table",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Recording{})
		},
		Down: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&models.Recording{})
		},
	}
}
