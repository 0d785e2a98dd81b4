package ingest

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type UploadRepo interface {
	Create(dbc dbctx.Context, upload *types.Upload) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Upload, error)
	GetForOrg(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Upload, error)
	ListByOrg(dbc dbctx.Context, orgID uuid.UUID, limit, offset int) ([]*types.Upload, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type uploadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadRepo(db *gorm.DB, baseLog *logger.Logger) UploadRepo {
	return &uploadRepo{db: db, log: baseLog.With("repo", "UploadRepo")}
}

func (r *uploadRepo) Create(dbc dbctx.Context, upload *types.Upload) error {
	if upload == nil {
		return nil
	}
	return dbc.Conn(r.db).Create(upload).Error
}

// GetByID returns nil, nil when the upload does not exist.
func (r *uploadRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Upload, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.Upload
	if err := dbc.Conn(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *uploadRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Upload, error) {
	var out []*types.Upload
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.Conn(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *uploadRepo) GetForOrg(dbc dbctx.Context, orgID, id uuid.UUID) (*types.Upload, error) {
	if orgID == uuid.Nil || id == uuid.Nil {
		return nil, nil
	}
	var out types.Upload
	if err := dbc.Conn(r.db).Where("org_id = ? AND id = ?", orgID, id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *uploadRepo) ListByOrg(dbc dbctx.Context, orgID uuid.UUID, limit, offset int) ([]*types.Upload, error) {
	var out []*types.Upload
	if orgID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	err := dbc.Conn(r.db).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *uploadRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.Conn(r.db).
		Model(&types.Upload{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes the upload and everything derived from it. Children are
// deleted explicitly so the cascade holds on engines without enforced FKs.
func (r *uploadRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.Conn(r.db).Transaction(func(txx *gorm.DB) error {
		for _, child := range []any{&types.DataRow{}, &types.PerformanceGap{}, &types.UploadOntology{}} {
			if err := txx.Where("upload_id = ?", id).Delete(child).Error; err != nil {
				return err
			}
		}
		return txx.Where("id = ?", id).Delete(&types.Upload{}).Error
	})
}
