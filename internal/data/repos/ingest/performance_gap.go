package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type PerformanceGapRepo interface {
	Upsert(dbc dbctx.Context, gaps []*types.PerformanceGap) error
	ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.PerformanceGap, error)
	// ListByOrgWeek filters by period_start when non-empty and by upload when non-nil.
	ListByOrgWeek(dbc dbctx.Context, orgID uuid.UUID, periodStart string, uploadID *uuid.UUID) ([]*types.PerformanceGap, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type performanceGapRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPerformanceGapRepo(db *gorm.DB, baseLog *logger.Logger) PerformanceGapRepo {
	return &performanceGapRepo{db: db, log: baseLog.With("repo", "PerformanceGapRepo")}
}

func (r *performanceGapRepo) Upsert(dbc dbctx.Context, gaps []*types.PerformanceGap) error {
	if len(gaps) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, g := range gaps {
		if g != nil {
			g.UpdatedAt = now
		}
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "org_id"},
				{Name: "upload_id"},
				{Name: "metric"},
				{Name: "period"},
				{Name: "period_start"},
				{Name: "dimension_field"},
				{Name: "dimension_value"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"actual_value",
				"expected_value",
				"expected_source",
				"gap_value",
				"gap_pct",
				"updated_at",
			}),
		}).
		Create(&gaps).Error
}

func (r *performanceGapRepo) ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.PerformanceGap, error) {
	var out []*types.PerformanceGap
	if uploadID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("upload_id = ?", uploadID).
		Order("period_start ASC, dimension_value ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *performanceGapRepo) ListByOrgWeek(dbc dbctx.Context, orgID uuid.UUID, periodStart string, uploadID *uuid.UUID) ([]*types.PerformanceGap, error) {
	var out []*types.PerformanceGap
	if orgID == uuid.Nil {
		return out, nil
	}
	q := dbc.Conn(r.db).Where("org_id = ? AND period = ?", orgID, types.PeriodWeekly)
	if periodStart != "" {
		q = q.Where("period_start = ?", periodStart)
	}
	if uploadID != nil && *uploadID != uuid.Nil {
		q = q.Where("upload_id = ?", *uploadID)
	}
	if err := q.Order("period_start DESC, gap_value DESC, dimension_value ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *performanceGapRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return dbc.Conn(r.db).Where("id IN ?", ids).Delete(&types.PerformanceGap{}).Error
}
