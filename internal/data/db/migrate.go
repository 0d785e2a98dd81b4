package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/aetherhq/aether-backend/internal/domain"
)

// Models lists every table the backend owns, parents before children.
func Models() []any {
	return []any{
		// Ingestion
		&types.Upload{},
		&types.DataRow{},
		&types.UploadOntology{},

		// Analytics
		&types.KPISnapshot{},
		&types.PerformanceGap{},

		// Jobs / worker
		&types.JobRun{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// EnsureIndexes adds the partial index the date backfill sweep scans.
func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_data_row_unresolved
		ON data_row(upload_id)
		WHERE resolved_date IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_data_row_unresolved: %w", err)
	}
	return nil
}
