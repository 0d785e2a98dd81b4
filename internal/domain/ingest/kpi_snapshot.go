package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// SnapshotMetrics is sparse: a nil field was never observed in the bucket.
type SnapshotMetrics struct {
	Revenue     *float64 `json:"revenue,omitempty"`
	LaborCost   *float64 `json:"laborCost,omitempty"`
	LaborHours  *float64 `json:"laborHours,omitempty"`
	Attendance  *float64 `json:"attendance,omitempty"`
	Utilization *float64 `json:"utilization,omitempty"`
}

// KPISnapshot is unique per (org, period, snapshot_date) and fully replaced on upsert.
type KPISnapshot struct {
	ID           uuid.UUID                           `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID        uuid.UUID                           `gorm:"type:uuid;not null;uniqueIndex:idx_kpi_snapshot_key,priority:1" json:"org_id"`
	Period       string                              `gorm:"column:period;size:16;not null;uniqueIndex:idx_kpi_snapshot_key,priority:2" json:"period"`
	SnapshotDate string                              `gorm:"column:snapshot_date;size:10;not null;uniqueIndex:idx_kpi_snapshot_key,priority:3" json:"snapshot_date"`
	Metrics      datatypes.JSONType[SnapshotMetrics] `gorm:"column:metrics;not null" json:"metrics"`
	SourceRows   int                                 `gorm:"column:source_rows;not null;default:0" json:"source_rows"`
	CreatedAt    time.Time                           `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                           `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (KPISnapshot) TableName() string { return "kpi_snapshot" }

func (s *KPISnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
