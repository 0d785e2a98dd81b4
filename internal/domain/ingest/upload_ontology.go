package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UploadOntology stores the detector's entity/relationship guess for an upload.
type UploadOntology struct {
	UploadID   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"upload_id"`
	Upload     *Upload        `gorm:"constraint:OnDelete:CASCADE;foreignKey:UploadID;references:ID" json:"-"`
	OrgID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"org_id"`
	Detector   string         `gorm:"column:detector;not null" json:"detector"`
	Guess      datatypes.JSON `gorm:"column:guess;type:jsonb;not null" json:"guess"`
	Confidence float64        `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt  time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UploadOntology) TableName() string { return "upload_ontology" }
