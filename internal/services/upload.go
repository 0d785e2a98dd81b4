package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
	"github.com/aetherhq/aether-backend/internal/ingestion/sheet"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/platform/gcp"
)

const (
	MappingSourceUser     = "user"
	MappingSourceInferred = "inferred"

	defaultDataType     = "custom"
	maxDataTypeLen      = 64
	inferenceSampleSize = 25
)

type UploadConfig struct {
	MaxBytes  int64
	BatchSize int
}

type IngestInput struct {
	OrgID    uuid.UUID
	FileName string
	DataType string
	// Mapping is the raw column mapping object in either orientation. Empty
	// means infer one from the headers.
	Mapping []byte
	Body    io.Reader
}

type IngestResult struct {
	Upload *types.Upload `json:"upload"`
	Job    *types.JobRun `json:"job,omitempty"`
}

type UploadService interface {
	Ingest(ctx context.Context, in IngestInput) (*IngestResult, error)
	// UpdateMapping replaces the mapping, re-resolves every row's date against
	// it and schedules a fresh pipeline run.
	UpdateMapping(ctx context.Context, orgID, uploadID uuid.UUID, raw []byte) (*IngestResult, error)
	Reprocess(ctx context.Context, orgID, uploadID uuid.UUID) (*IngestResult, error)
	Delete(ctx context.Context, orgID, uploadID uuid.UUID) error
	Get(ctx context.Context, orgID, uploadID uuid.UUID) (*types.Upload, error)
	List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*types.Upload, error)
}

type uploadService struct {
	db       *gorm.DB
	log      *logger.Logger
	uploads  repos.UploadRepo
	rows     repos.DataRowRepo
	gaps     repos.PerformanceGapRepo
	agg      AggregationService
	pipeline PipelineService
	archive  gcp.Archive
	cat      *catalog.Catalog
	cfg      UploadConfig
	metrics  *observability.Metrics
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	r repos.Repos,
	agg AggregationService,
	pipeline PipelineService,
	archive gcp.Archive,
	cat *catalog.Catalog,
	cfg UploadConfig,
	metrics *observability.Metrics,
) UploadService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cat == nil {
		cat = catalog.Default()
	}
	return &uploadService{
		db:       db,
		log:      baseLog.With("service", "UploadService"),
		uploads:  r.Uploads,
		rows:     r.DataRows,
		gaps:     r.Gaps,
		agg:      agg,
		pipeline: pipeline,
		archive:  archive,
		cat:      cat,
		cfg:      cfg,
		metrics:  metrics,
	}
}

func (s *uploadService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if in.OrgID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing org id", apperrors.ErrInvalidArgument)
	}
	name := filepath.Base(strings.TrimSpace(in.FileName))
	if name == "" || name == "." {
		return nil, fmt.Errorf("%w: missing file name", apperrors.ErrInvalidArgument)
	}
	if _, err := sheet.DetectFormat(name); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	dataType, err := normalizeDataType(in.DataType)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(in.Mapping)) > 0 && !isJSONObject(in.Mapping) {
		return nil, fmt.Errorf("%w: column_mapping must be a JSON object", apperrors.ErrInvalidArgument)
	}
	if in.Body == nil {
		return nil, fmt.Errorf("%w: missing file body", apperrors.ErrInvalidArgument)
	}
	data, err := s.readBody(in.Body)
	if err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	upload := &types.Upload{
		ID:        uuid.New(),
		OrgID:     in.OrgID,
		FileName:  name,
		DataType:  dataType,
		Status:    types.UploadStatusPending,
		SizeBytes: int64(len(data)),
	}
	if err := s.uploads.Create(dbc, upload); err != nil {
		return nil, db.Classify("ingest: create upload", err)
	}
	s.archiveRaw(ctx, upload, data)

	table, err := sheet.Parse(name, bytes.NewReader(data))
	if err != nil {
		s.markError(ctx, upload, "parse: "+err.Error())
		return &IngestResult{Upload: upload}, fmt.Errorf("%w: parse %s: %v", apperrors.ErrInvalidArgument, name, err)
	}

	m, source := mapping.Parse(in.Mapping), MappingSourceUser
	if len(m) == 0 {
		m, source = mapping.Infer(table.Headers, sampleRows(table.Rows, inferenceSampleSize), s.cat), MappingSourceInferred
	}
	m = m.OrderBy(table.Headers)

	rows, withoutDate, err := buildRows(upload, table.Rows, m)
	if err != nil {
		s.markError(ctx, upload, err.Error())
		return &IngestResult{Upload: upload}, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	headersJSON, err := json.Marshal(table.Headers)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}

	updates := map[string]interface{}{
		"headers":           datatypes.JSON(headersJSON),
		"column_mapping":    datatypes.JSON(m.JSON()),
		"mapping_source":    source,
		"row_count":         len(rows),
		"rows_without_date": withoutDate,
		"status":            types.UploadStatusProcessing,
		"error":             "",
	}
	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.rows.CreateInBatches(inner, rows, s.cfg.BatchSize); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		return s.uploads.UpdateFields(inner, upload.ID, updates)
	})
	if err != nil {
		s.markError(ctx, upload, "store rows: "+err.Error())
		return nil, db.Classify("ingest", err)
	}
	s.metrics.AddRowsIngested(len(rows))
	s.metrics.AddDataQuality("ingest", "rows_without_date", withoutDate)
	s.log.Info("Upload ingested",
		"org_id", in.OrgID,
		"upload_id", upload.ID,
		"rows", len(rows),
		"rows_without_date", withoutDate,
		"mapping_source", source,
	)

	// The rows are stored at this point; a failed dispatch leaves the upload
	// processing until it is reprocessed.
	job, err := s.pipeline.Dispatch(ctx, in.OrgID, upload.ID)
	if err != nil {
		s.log.Warn("Pipeline dispatch failed", "upload_id", upload.ID, "error", err)
	}
	if fresh, err := s.uploads.GetByID(dbc, upload.ID); err == nil && fresh != nil {
		upload = fresh
	}
	return &IngestResult{Upload: upload, Job: job}, nil
}

func (s *uploadService) readBody(r io.Reader) ([]byte, error) {
	if s.cfg.MaxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperrors.ErrInvalidArgument, s.cfg.MaxBytes)
	}
	return data, nil
}

// archiveRaw keeps the original bytes when an archive is configured. Failure
// is logged; ingestion does not depend on it.
func (s *uploadService) archiveRaw(ctx context.Context, upload *types.Upload, data []byte) {
	if s.archive == nil {
		return
	}
	key := gcp.ArchiveKey(upload.OrgID, upload.ID, upload.FileName)
	if err := s.archive.Put(ctx, key, bytes.NewReader(data), gcp.ContentType(upload.FileName)); err != nil {
		s.log.Warn("Upload archive failed", "upload_id", upload.ID, "key", key, "error", err)
		return
	}
	if err := s.uploads.UpdateFields(dbctx.Context{Ctx: ctx}, upload.ID, map[string]interface{}{"storage_key": key}); err != nil {
		s.log.Warn("Failed to record archive key", "upload_id", upload.ID, "error", err)
		return
	}
	upload.StorageKey = key
}

func (s *uploadService) markError(ctx context.Context, upload *types.Upload, msg string) {
	upload.Status = types.UploadStatusError
	upload.Error = msg
	if err := s.uploads.UpdateFields(dbctx.Context{Ctx: ctx}, upload.ID, map[string]interface{}{
		"status": types.UploadStatusError,
		"error":  msg,
	}); err != nil {
		s.log.Warn("Failed to mark upload as errored", "upload_id", upload.ID, "error", err)
	}
}

func (s *uploadService) UpdateMapping(ctx context.Context, orgID, uploadID uuid.UUID, raw []byte) (*IngestResult, error) {
	if !isJSONObject(raw) {
		return nil, fmt.Errorf("%w: column mapping must be a JSON object", apperrors.ErrInvalidArgument)
	}
	upload, err := s.Get(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	view := newUploadView(upload)
	m := mapping.Parse(raw).OrderBy(view.headers)

	oldKeys, err := s.agg.TouchedKeys(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	stored, err := s.rows.ListByUpload(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("update mapping: load rows", err)
	}
	dateHeader, _ := m.Header(mapping.RoleDate)
	patch := make(map[uuid.UUID]*string, len(stored))
	withoutDate := 0
	for _, r := range stored {
		rec, derr := record.Decode(r.Fields, view.headers)
		if derr != nil {
			rec = record.Row{}
		}
		var next *string
		if d, ok := dates.Resolve(rec, dateHeader); ok {
			next = &d
		} else {
			withoutDate++
		}
		if !sameDate(r.ResolvedDate, next) {
			patch[r.ID] = next
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.rows.SetResolvedDates(inner, patch); err != nil {
			return fmt.Errorf("re-resolve dates: %w", err)
		}
		existing, err := s.gaps.ListByUpload(inner, uploadID)
		if err != nil {
			return fmt.Errorf("list gaps: %w", err)
		}
		ids := make([]uuid.UUID, 0, len(existing))
		for _, g := range existing {
			ids = append(ids, g.ID)
		}
		if err := s.gaps.DeleteByIDs(inner, ids); err != nil {
			return fmt.Errorf("clear gaps: %w", err)
		}
		return s.uploads.UpdateFields(inner, uploadID, map[string]interface{}{
			"column_mapping":    datatypes.JSON(m.JSON()),
			"mapping_source":    MappingSourceUser,
			"rows_without_date": withoutDate,
			"status":            types.UploadStatusProcessing,
			"error":             "",
		})
	})
	if err != nil {
		return nil, db.Classify("update mapping", err)
	}
	// Buckets the old mapping fed are recomputed now; the pipeline run
	// covers the ones the new mapping feeds.
	if _, err := s.agg.RefreshKeys(ctx, orgID, oldKeys); err != nil {
		return nil, err
	}
	s.log.Info("Upload mapping updated", "org_id", orgID, "upload_id", uploadID, "dates_changed", len(patch))
	return s.dispatch(ctx, orgID, uploadID)
}

func (s *uploadService) Reprocess(ctx context.Context, orgID, uploadID uuid.UUID) (*IngestResult, error) {
	if _, err := s.Get(ctx, orgID, uploadID); err != nil {
		return nil, err
	}
	if err := s.uploads.UpdateFields(dbctx.Context{Ctx: ctx}, uploadID, map[string]interface{}{
		"status": types.UploadStatusProcessing,
		"error":  "",
	}); err != nil {
		return nil, db.Classify("reprocess", err)
	}
	return s.dispatch(ctx, orgID, uploadID)
}

func (s *uploadService) dispatch(ctx context.Context, orgID, uploadID uuid.UUID) (*IngestResult, error) {
	job, err := s.pipeline.Dispatch(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	upload, err := s.Get(ctx, orgID, uploadID)
	if err != nil {
		return nil, err
	}
	return &IngestResult{Upload: upload, Job: job}, nil
}

func (s *uploadService) Delete(ctx context.Context, orgID, uploadID uuid.UUID) error {
	upload, err := s.Get(ctx, orgID, uploadID)
	if err != nil {
		return err
	}
	keys, err := s.agg.TouchedKeys(ctx, orgID, uploadID)
	if err != nil {
		return err
	}
	if err := s.uploads.Delete(dbctx.Context{Ctx: ctx}, uploadID); err != nil {
		return db.Classify("delete upload", err)
	}
	if s.archive != nil && upload.StorageKey != "" {
		if err := s.archive.Delete(ctx, upload.StorageKey); err != nil {
			s.log.Warn("Failed to delete archived upload", "upload_id", uploadID, "key", upload.StorageKey, "error", err)
		}
	}
	if _, err := s.agg.RefreshKeys(ctx, orgID, keys); err != nil {
		return err
	}
	s.log.Info("Upload deleted", "org_id", orgID, "upload_id", uploadID, "buckets", len(keys))
	return nil
}

func (s *uploadService) Get(ctx context.Context, orgID, uploadID uuid.UUID) (*types.Upload, error) {
	upload, err := s.uploads.GetForOrg(dbctx.Context{Ctx: ctx}, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("get upload", err)
	}
	if upload == nil {
		return nil, fmt.Errorf("%w: upload %s", apperrors.ErrNotFound, uploadID)
	}
	return upload, nil
}

func (s *uploadService) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*types.Upload, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing org id", apperrors.ErrInvalidArgument)
	}
	out, err := s.uploads.ListByOrg(dbctx.Context{Ctx: ctx}, orgID, limit, offset)
	if err != nil {
		return nil, db.Classify("list uploads", err)
	}
	return out, nil
}

// buildRows resolves each row's date at ingestion and encodes its fields.
func buildRows(upload *types.Upload, table []record.Row, m mapping.Mapping) ([]*types.DataRow, int, error) {
	dateHeader, _ := m.Header(mapping.RoleDate)
	out := make([]*types.DataRow, 0, len(table))
	withoutDate := 0
	for i, rec := range table {
		raw, err := rec.EncodeFields()
		if err != nil {
			return nil, 0, fmt.Errorf("row %d: %w", i+1, err)
		}
		row := &types.DataRow{
			ID:       uuid.New(),
			OrgID:    upload.OrgID,
			UploadID: upload.ID,
			RowIndex: i,
			Fields:   datatypes.JSON(raw),
		}
		if d, ok := dates.Resolve(rec, dateHeader); ok {
			row.ResolvedDate = &d
		} else {
			withoutDate++
		}
		out = append(out, row)
	}
	return out, withoutDate, nil
}

func normalizeDataType(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return defaultDataType, nil
	}
	if len(s) > maxDataTypeLen {
		return "", fmt.Errorf("%w: data_type longer than %d characters", apperrors.ErrInvalidArgument, maxDataTypeLen)
	}
	return s, nil
}

func isJSONObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 1 && raw[0] == '{' && raw[len(raw)-1] == '}'
}

func sampleRows(rows []record.Row, n int) []record.Row {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}

func sameDate(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
