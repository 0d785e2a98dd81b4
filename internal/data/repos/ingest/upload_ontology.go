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

type UploadOntologyRepo interface {
	Upsert(dbc dbctx.Context, row *types.UploadOntology) error
	GetByUpload(dbc dbctx.Context, uploadID uuid.UUID) (*types.UploadOntology, error)
}

type uploadOntologyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUploadOntologyRepo(db *gorm.DB, baseLog *logger.Logger) UploadOntologyRepo {
	return &uploadOntologyRepo{db: db, log: baseLog.With("repo", "UploadOntologyRepo")}
}

func (r *uploadOntologyRepo) Upsert(dbc dbctx.Context, row *types.UploadOntology) error {
	if row == nil || row.UploadID == uuid.Nil {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return dbc.Conn(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "upload_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"detector", "guess", "confidence", "updated_at"}),
		}).
		Create(row).Error
}

func (r *uploadOntologyRepo) GetByUpload(dbc dbctx.Context, uploadID uuid.UUID) (*types.UploadOntology, error) {
	if uploadID == uuid.Nil {
		return nil, nil
	}
	var out types.UploadOntology
	if err := dbc.Conn(r.db).Where("upload_id = ?", uploadID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.UploadID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
