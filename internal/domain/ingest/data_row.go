package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DataRow is one raw spreadsheet record. Only ResolvedDate changes after ingestion.
type DataRow struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID    uuid.UUID `gorm:"type:uuid;not null;index:idx_data_row_org_date,priority:1" json:"org_id"`
	UploadID uuid.UUID `gorm:"type:uuid;not null;index:idx_data_row_upload_idx,priority:1" json:"upload_id"`
	Upload   *Upload   `gorm:"constraint:OnDelete:CASCADE;foreignKey:UploadID;references:ID" json:"-"`
	RowIndex int       `gorm:"column:row_index;not null;index:idx_data_row_upload_idx,priority:2" json:"row_index"`
	// Fields is the header->value object in original column order.
	Fields       datatypes.JSON `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	ResolvedDate *string        `gorm:"column:resolved_date;size:10;index:idx_data_row_org_date,priority:2" json:"resolved_date,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (DataRow) TableName() string { return "data_row" }

func (r *DataRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
