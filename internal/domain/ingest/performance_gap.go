package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	GapMetricRevenue = "revenue"

	ExpectedFromColumn  = "column"
	ExpectedFromWeekMax = "week_max"
)

// PerformanceGap is the weekly revenue shortfall of one dimension value.
type PerformanceGap struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID          uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_performance_gap_key,priority:1;index:idx_performance_gap_org_week,priority:1" json:"org_id"`
	UploadID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_performance_gap_key,priority:2" json:"upload_id"`
	Upload         *Upload   `gorm:"constraint:OnDelete:CASCADE;foreignKey:UploadID;references:ID" json:"-"`
	Metric         string    `gorm:"column:metric;size:32;not null;uniqueIndex:idx_performance_gap_key,priority:3" json:"metric"`
	Period         string    `gorm:"column:period;size:16;not null;uniqueIndex:idx_performance_gap_key,priority:4" json:"period"`
	PeriodStart    string    `gorm:"column:period_start;size:10;not null;uniqueIndex:idx_performance_gap_key,priority:5;index:idx_performance_gap_org_week,priority:2" json:"period_start"`
	DimensionField string    `gorm:"column:dimension_field;not null;uniqueIndex:idx_performance_gap_key,priority:6" json:"dimension_field"`
	DimensionValue string    `gorm:"column:dimension_value;not null;uniqueIndex:idx_performance_gap_key,priority:7" json:"dimension_value"`

	ActualValue    float64  `gorm:"column:actual_value;not null" json:"actual_value"`
	ExpectedValue  float64  `gorm:"column:expected_value;not null" json:"expected_value"`
	ExpectedSource string   `gorm:"column:expected_source;size:16" json:"expected_source"`
	GapValue       float64  `gorm:"column:gap_value;not null" json:"gap_value"`
	GapPct         *float64 `gorm:"column:gap_pct" json:"gap_pct"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PerformanceGap) TableName() string { return "performance_gap" }

func (g *PerformanceGap) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
