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

type KPISnapshotRepo interface {
	// Upsert fully replaces metrics of existing (org, period, snapshot_date) rows.
	Upsert(dbc dbctx.Context, snapshots []*types.KPISnapshot) error
	DeleteKeys(dbc dbctx.Context, orgID uuid.UUID, period string, dates []string) error
	ListRange(dbc dbctx.Context, orgID uuid.UUID, period, start, end string) ([]*types.KPISnapshot, error)
}

type kpiSnapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKPISnapshotRepo(db *gorm.DB, baseLog *logger.Logger) KPISnapshotRepo {
	return &kpiSnapshotRepo{db: db, log: baseLog.With("repo", "KPISnapshotRepo")}
}

func (r *kpiSnapshotRepo) Upsert(dbc dbctx.Context, snapshots []*types.KPISnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, s := range snapshots {
		if s != nil {
			s.UpdatedAt = now
		}
	}
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "period"}, {Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"metrics", "source_rows", "updated_at"}),
		}).
		Create(&snapshots).Error
}

func (r *kpiSnapshotRepo) DeleteKeys(dbc dbctx.Context, orgID uuid.UUID, period string, dates []string) error {
	if orgID == uuid.Nil || period == "" || len(dates) == 0 {
		return nil
	}
	return dbc.Conn(r.db).
		Where("org_id = ? AND period = ? AND snapshot_date IN ?", orgID, period, dates).
		Delete(&types.KPISnapshot{}).Error
}

func (r *kpiSnapshotRepo) ListRange(dbc dbctx.Context, orgID uuid.UUID, period, start, end string) ([]*types.KPISnapshot, error) {
	var out []*types.KPISnapshot
	if orgID == uuid.Nil || period == "" {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("org_id = ? AND period = ? AND snapshot_date >= ? AND snapshot_date <= ?", orgID, period, start, end).
		Order("snapshot_date ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
