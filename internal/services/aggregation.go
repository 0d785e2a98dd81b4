package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/analytics/snapshots"
	"github.com/aetherhq/aether-backend/internal/clients/redis"
	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type AggregationResult struct {
	UploadID uuid.UUID       `json:"upload_id"`
	Skipped  bool            `json:"skipped,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Stats    snapshots.Stats `json:"stats"`
	// Keys are the buckets this upload contributes to.
	Keys      []snapshots.Key `json:"-"`
	DatesSet  int             `json:"dates_set"`
	Refreshed RefreshResult   `json:"refreshed"`
}

type RefreshResult struct {
	Upserted int `json:"upserted"`
	Deleted  int `json:"deleted"`
}

// AggregationService maintains kpi_snapshot rows.
//
// Snapshots are org-wide: a bucket's value is the sum over every dated row of
// every upload in the org that falls inside it. Aggregate recomputes the
// buckets one upload touches from scratch, so repeated runs converge to the
// same values.
type AggregationService interface {
	Aggregate(ctx context.Context, orgID, uploadID uuid.UUID) (*AggregationResult, error)
	// RefreshKeys recomputes the listed buckets from stored rows; buckets with
	// no contributing rows are removed.
	RefreshKeys(ctx context.Context, orgID uuid.UUID, keys []snapshots.Key) (RefreshResult, error)
	// TouchedKeys lists the buckets an upload currently contributes to.
	TouchedKeys(ctx context.Context, orgID, uploadID uuid.UUID) ([]snapshots.Key, error)
}

type aggregationService struct {
	db        *gorm.DB
	log       *logger.Logger
	uploads   repos.UploadRepo
	rows      repos.DataRowRepo
	snapshots repos.KPISnapshotRepo
	ex        *extractor.Extractor
	cache     redis.Cache
	metrics   *observability.Metrics
}

func NewAggregationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	r repos.Repos,
	ex *extractor.Extractor,
	cache redis.Cache,
	metrics *observability.Metrics,
) AggregationService {
	return &aggregationService{
		db:        db,
		log:       baseLog.With("service", "AggregationService"),
		uploads:   r.Uploads,
		rows:      r.DataRows,
		snapshots: r.Snapshots,
		ex:        ex,
		cache:     cache,
		metrics:   metrics,
	}
}

func (s *aggregationService) Aggregate(ctx context.Context, orgID, uploadID uuid.UUID) (*AggregationResult, error) {
	res := &AggregationResult{UploadID: uploadID}
	dbc := dbctx.Context{Ctx: ctx}

	upload, err := s.uploads.GetByID(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("aggregate: load upload", err)
	}
	if upload == nil || upload.OrgID != orgID {
		s.log.Info("Aggregate skipped: upload not found", "org_id", orgID, "upload_id", uploadID)
		res.Skipped, res.Reason = true, "upload_not_found"
		return res, nil
	}
	rows, err := s.rows.ListByUpload(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("aggregate: load rows", err)
	}
	if len(rows) == 0 {
		s.log.Info("Aggregate skipped: upload has no rows", "org_id", orgID, "upload_id", uploadID)
		res.Skipped, res.Reason = true, "no_rows"
		return res, nil
	}

	view := newUploadView(upload)
	dateHeader, _ := view.mapping.Header(mapping.RoleDate)
	builder := snapshots.NewBuilder(s.ex)
	patch := map[uuid.UUID]*string{}
	for _, r := range rows {
		rec := decodeRow(r, view.headers)
		if r.ResolvedDate == nil {
			if d, ok := dates.Resolve(rec, dateHeader); ok {
				rec.ResolvedDate = d
				patch[r.ID] = &d
			}
		}
		builder.Add(rec, view.mapping, upload.DataType)
	}
	res.Stats = builder.Stats()
	res.Keys = builder.Keys()
	res.DatesSet = len(patch)

	if len(patch) > 0 {
		if err := s.rows.SetResolvedDates(dbc, patch); err != nil {
			return nil, db.Classify("aggregate: patch resolved dates", err)
		}
	}
	if err := s.uploads.UpdateFields(dbc, uploadID, map[string]interface{}{
		"rows_without_date": res.Stats.RowsWithoutDate,
	}); err != nil {
		return nil, db.Classify("aggregate: update upload", err)
	}
	s.metrics.AddDataQuality("aggregate", "rows_without_date", res.Stats.RowsWithoutDate)
	s.metrics.AddDataQuality("aggregate", "rows_without_metrics", res.Stats.RowsWithoutMetrics)

	refreshed, err := s.RefreshKeys(ctx, orgID, res.Keys)
	if err != nil {
		return nil, err
	}
	res.Refreshed = refreshed

	s.log.Debug("Aggregated upload",
		"org_id", orgID,
		"upload_id", uploadID,
		"rows", res.Stats.RowsSeen,
		"rows_without_date", res.Stats.RowsWithoutDate,
		"rows_without_metrics", res.Stats.RowsWithoutMetrics,
		"buckets", len(res.Keys),
	)
	return res, nil
}

func (s *aggregationService) RefreshKeys(ctx context.Context, orgID uuid.UUID, keys []snapshots.Key) (RefreshResult, error) {
	var out RefreshResult
	start, end, ok := snapshots.Window(keys)
	if !ok {
		return out, nil
	}
	dbc := dbctx.Context{Ctx: ctx}

	rows, err := s.rows.ListByOrgDateRange(dbc, orgID, start, end)
	if err != nil {
		return out, db.Classify("refresh snapshots: load rows", err)
	}
	views, err := loadUploadViews(dbc, s.uploads, rows)
	if err != nil {
		return out, db.Classify("refresh snapshots: load uploads", err)
	}
	builder := snapshots.NewBuilder(s.ex)
	for _, r := range rows {
		view, ok := views[r.UploadID]
		if !ok {
			continue
		}
		builder.Add(decodeRow(r, view.headers), view.mapping, view.upload.DataType)
	}

	var upserts []*types.KPISnapshot
	stale := map[snapshots.Period][]string{}
	for _, k := range dedupeKeys(keys) {
		bucket, ok := builder.Get(k)
		if !ok {
			stale[k.Period] = append(stale[k.Period], k.Date)
			continue
		}
		upserts = append(upserts, &types.KPISnapshot{
			OrgID:        orgID,
			Period:       string(k.Period),
			SnapshotDate: k.Date,
			Metrics:      datatypes.NewJSONType(snapshotMetrics(bucket.Metrics)),
			SourceRows:   bucket.Rows,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		if err := s.snapshots.Upsert(inner, upserts); err != nil {
			return fmt.Errorf("upsert snapshots: %w", err)
		}
		for period, days := range stale {
			if err := s.snapshots.DeleteKeys(inner, orgID, string(period), days); err != nil {
				return fmt.Errorf("delete empty snapshots: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return out, db.Classify("refresh snapshots", err)
	}

	out.Upserted = len(upserts)
	for period, days := range stale {
		out.Deleted += len(days)
		s.metrics.AddSnapshots(string(period), "delete", len(days))
	}
	for _, snap := range upserts {
		s.metrics.AddSnapshots(snap.Period, "upsert", 1)
	}
	invalidateKPICache(ctx, s.cache, s.log, orgID)
	return out, nil
}

func (s *aggregationService) TouchedKeys(ctx context.Context, orgID, uploadID uuid.UUID) ([]snapshots.Key, error) {
	dbc := dbctx.Context{Ctx: ctx}
	upload, err := s.uploads.GetForOrg(dbc, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("touched keys: load upload", err)
	}
	if upload == nil {
		return nil, nil
	}
	rows, err := s.rows.ListByUpload(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("touched keys: load rows", err)
	}
	view := newUploadView(upload)
	builder := snapshots.NewBuilder(s.ex)
	for _, r := range rows {
		builder.Add(decodeRow(r, view.headers), view.mapping, upload.DataType)
	}
	return builder.Keys(), nil
}

func snapshotMetrics(m extractor.Metrics) types.SnapshotMetrics {
	return types.SnapshotMetrics{
		Revenue:     m.Float(extractor.Revenue),
		LaborCost:   m.Float(extractor.LaborCost),
		LaborHours:  m.Float(extractor.LaborHours),
		Attendance:  m.Float(extractor.Attendance),
		Utilization: m.Float(extractor.Utilization),
	}
}

func metricsFromSnapshot(sm types.SnapshotMetrics) extractor.Metrics {
	return extractor.FromFloats(map[extractor.Field]*float64{
		extractor.Revenue:     sm.Revenue,
		extractor.LaborCost:   sm.LaborCost,
		extractor.LaborHours:  sm.LaborHours,
		extractor.Attendance:  sm.Attendance,
		extractor.Utilization: sm.Utilization,
	})
}

func dedupeKeys(keys []snapshots.Key) []snapshots.Key {
	seen := make(map[snapshots.Key]struct{}, len(keys))
	out := make([]snapshots.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	snapshots.SortKeys(out)
	return out
}
