package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type BackfillOptions struct {
	// UploadIDs restricts the sweep; empty means every upload with undated rows.
	UploadIDs []uuid.UUID
	DryRun    bool
	Limit     int
}

type BackfillUploadResult struct {
	UploadID     uuid.UUID          `json:"upload_id"`
	OrgID        uuid.UUID          `json:"org_id"`
	Unresolved   int                `json:"unresolved"`
	Patched      int                `json:"patched"`
	StillMissing int                `json:"still_missing"`
	Skipped      string             `json:"skipped,omitempty"`
	Aggregate    *AggregationResult `json:"aggregate,omitempty"`
	Gaps         *GapResult         `json:"gaps,omitempty"`
	Error        string             `json:"error,omitempty"`
}

type BackfillReport struct {
	DryRun       bool                   `json:"dry_run"`
	Uploads      []BackfillUploadResult `json:"uploads"`
	Patched      int                    `json:"patched"`
	StillMissing int                    `json:"still_missing"`
	Failed       int                    `json:"failed"`
}

// BackfillService patches rows whose date could not be resolved at ingestion,
// using each upload's current mapping, then re-aggregates touched uploads.
type BackfillService interface {
	Run(ctx context.Context, opts BackfillOptions) (*BackfillReport, error)
}

type backfillService struct {
	db      *gorm.DB
	log     *logger.Logger
	uploads repos.UploadRepo
	rows    repos.DataRowRepo
	agg     AggregationService
	gaps    GapService
	jobs    JobService
}

func NewBackfillService(db *gorm.DB, baseLog *logger.Logger, r repos.Repos, agg AggregationService, gapSvc GapService, jobs JobService) BackfillService {
	return &backfillService{
		db:      db,
		log:     baseLog.With("service", "BackfillService"),
		uploads: r.Uploads,
		rows:    r.DataRows,
		agg:     agg,
		gaps:    gapSvc,
		jobs:    jobs,
	}
}

func (s *backfillService) Run(ctx context.Context, opts BackfillOptions) (*BackfillReport, error) {
	report := &BackfillReport{DryRun: opts.DryRun, Uploads: []BackfillUploadResult{}}
	dbc := dbctx.Context{Ctx: ctx}

	ids := opts.UploadIDs
	if len(ids) == 0 {
		found, err := s.rows.UploadIDsWithUnresolved(dbc, opts.Limit)
		if err != nil {
			return nil, db.Classify("backfill: find uploads", err)
		}
		ids = found
	} else if opts.Limit > 0 && len(ids) > opts.Limit {
		ids = ids[:opts.Limit]
	}
	uploads, err := s.uploads.GetByIDs(dbc, ids)
	if err != nil {
		return nil, db.Classify("backfill: load uploads", err)
	}

	for _, upload := range uploads {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := s.backfillUpload(ctx, newUploadView(upload), opts.DryRun)
		report.Patched += res.Patched
		report.StillMissing += res.StillMissing
		if res.Error != "" {
			report.Failed++
		}
		report.Uploads = append(report.Uploads, res)
	}
	s.log.Info("Date backfill finished",
		"uploads", len(report.Uploads),
		"patched", report.Patched,
		"still_missing", report.StillMissing,
		"failed", report.Failed,
		"dry_run", opts.DryRun,
	)
	return report, nil
}

func (s *backfillService) backfillUpload(ctx context.Context, view uploadView, dryRun bool) BackfillUploadResult {
	upload := view.upload
	res := BackfillUploadResult{UploadID: upload.ID, OrgID: upload.OrgID}
	dbc := dbctx.Context{Ctx: ctx}

	if s.jobs != nil && !dryRun {
		pending, err := s.jobs.HasRunnable(ctx, upload.OrgID, PipelineEntityType, upload.ID, PipelineJobType)
		if err != nil {
			res.Error = err.Error()
			return res
		}
		if pending {
			res.Skipped = "pipeline_pending"
			return res
		}
	}

	unresolved, err := s.rows.ListUnresolved(dbc, upload.ID)
	if err != nil {
		res.Error = db.Classify("backfill: load rows", err).Error()
		return res
	}
	res.Unresolved = len(unresolved)
	dateHeader, _ := view.mapping.Header(mapping.RoleDate)
	patch := map[uuid.UUID]*string{}
	for _, r := range unresolved {
		rec, derr := record.Decode(r.Fields, view.headers)
		if derr != nil {
			continue
		}
		if d, ok := dates.Resolve(rec, dateHeader); ok {
			patch[r.ID] = &d
		}
	}
	res.Patched = len(patch)
	res.StillMissing = res.Unresolved - res.Patched
	if dryRun || len(patch) == 0 {
		return res
	}

	if err := s.rows.SetResolvedDates(dbc, patch); err != nil {
		res.Error = db.Classify("backfill: patch dates", err).Error()
		return res
	}
	aggRes, err := s.agg.Aggregate(ctx, upload.OrgID, upload.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Aggregate = aggRes
	gapRes, err := s.gaps.ComputeGaps(ctx, upload.OrgID, upload.ID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Gaps = gapRes
	return res
}
