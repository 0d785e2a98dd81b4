package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	UploadStatusPending    = "pending"
	UploadStatusProcessing = "processing"
	UploadStatusReady      = "ready"
	UploadStatusError      = "error"
)

// Upload is one spreadsheet ingestion batch. Deleting it removes its rows and gaps.
type Upload struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID    uuid.UUID `gorm:"type:uuid;not null;index" json:"org_id"`
	FileName string    `gorm:"column:file_name;not null" json:"file_name"`
	// DataType is the free-text label the user declared (revenue, labor, attendance, custom).
	DataType string `gorm:"column:data_type;not null;index" json:"data_type"`
	// ColumnMapping holds the canonical header->role object; null until mapped.
	ColumnMapping datatypes.JSON `gorm:"column:column_mapping;type:jsonb" json:"column_mapping,omitempty"`
	MappingSource string         `gorm:"column:mapping_source" json:"mapping_source,omitempty"`
	Headers       datatypes.JSON `gorm:"column:headers;type:jsonb" json:"headers,omitempty"`

	Status          string `gorm:"column:status;not null;index" json:"status"`
	Error           string `gorm:"column:error" json:"error,omitempty"`
	RowCount        int    `gorm:"column:row_count;not null;default:0" json:"row_count"`
	RowsWithoutDate int    `gorm:"column:rows_without_date;not null;default:0" json:"rows_without_date"`

	StorageKey string `gorm:"column:storage_key" json:"storage_key,omitempty"`
	SizeBytes  int64  `gorm:"column:size_bytes" json:"size_bytes"`

	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Upload) TableName() string { return "upload" }

func (u *Upload) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = UploadStatusPending
	}
	return nil
}
