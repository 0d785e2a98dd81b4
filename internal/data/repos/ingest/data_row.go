package ingest

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type DataRowRepo interface {
	CreateInBatches(dbc dbctx.Context, rows []*types.DataRow, batchSize int) error
	ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.DataRow, error)
	// ListByOrgDateRange returns dated rows of every upload in the org with
	// resolved_date in [start, end] (YYYY-MM-DD, inclusive).
	ListByOrgDateRange(dbc dbctx.Context, orgID uuid.UUID, start, end string) ([]*types.DataRow, error)
	ListUnresolved(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.DataRow, error)
	CountUnresolved(dbc dbctx.Context, uploadID uuid.UUID) (int64, error)
	UploadIDsWithUnresolved(dbc dbctx.Context, limit int) ([]uuid.UUID, error)
	// SetResolvedDates patches resolved_date per row id; a nil date clears it.
	SetResolvedDates(dbc dbctx.Context, dates map[uuid.UUID]*string) error
}

type dataRowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataRowRepo(db *gorm.DB, baseLog *logger.Logger) DataRowRepo {
	return &dataRowRepo{db: db, log: baseLog.With("repo", "DataRowRepo")}
}

func (r *dataRowRepo) CreateInBatches(dbc dbctx.Context, rows []*types.DataRow, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return dbc.Conn(r.db).CreateInBatches(rows, batchSize).Error
}

func (r *dataRowRepo) ListByUpload(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.DataRow, error) {
	var out []*types.DataRow
	if uploadID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("upload_id = ?", uploadID).
		Order("row_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataRowRepo) ListByOrgDateRange(dbc dbctx.Context, orgID uuid.UUID, start, end string) ([]*types.DataRow, error) {
	var out []*types.DataRow
	if orgID == uuid.Nil || start == "" || end == "" {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("org_id = ? AND resolved_date IS NOT NULL AND resolved_date >= ? AND resolved_date <= ?", orgID, start, end).
		Order("upload_id ASC, row_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataRowRepo) ListUnresolved(dbc dbctx.Context, uploadID uuid.UUID) ([]*types.DataRow, error) {
	var out []*types.DataRow
	if uploadID == uuid.Nil {
		return out, nil
	}
	if err := dbc.Conn(r.db).
		Where("upload_id = ? AND resolved_date IS NULL", uploadID).
		Order("row_index ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataRowRepo) CountUnresolved(dbc dbctx.Context, uploadID uuid.UUID) (int64, error) {
	var n int64
	if uploadID == uuid.Nil {
		return 0, nil
	}
	err := dbc.Conn(r.db).
		Model(&types.DataRow{}).
		Where("upload_id = ? AND resolved_date IS NULL", uploadID).
		Count(&n).Error
	return n, err
}

func (r *dataRowRepo) UploadIDsWithUnresolved(dbc dbctx.Context, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	q := dbc.Conn(r.db).
		Model(&types.DataRow{}).
		Distinct("upload_id").
		Where("resolved_date IS NULL")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("upload_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *dataRowRepo) SetResolvedDates(dbc dbctx.Context, dates map[uuid.UUID]*string) error {
	if len(dates) == 0 {
		return nil
	}
	byDate := map[string][]uuid.UUID{}
	var cleared []uuid.UUID
	for id, d := range dates {
		if d == nil {
			cleared = append(cleared, id)
			continue
		}
		byDate[*d] = append(byDate[*d], id)
	}
	return dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		for d, ids := range byDate {
			if err := txx.Model(&types.DataRow{}).
				Where("id IN ?", ids).
				Update("resolved_date", d).Error; err != nil {
				return err
			}
		}
		if len(cleared) > 0 {
			if err := txx.Model(&types.DataRow{}).
				Where("id IN ?", cleared).
				Update("resolved_date", gorm.Expr("NULL")).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
