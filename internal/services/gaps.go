package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/analytics/gaps"
	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/dates"
	"github.com/aetherhq/aether-backend/internal/ingestion/record"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type GapResult struct {
	UploadID uuid.UUID  `json:"upload_id"`
	Skipped  bool       `json:"skipped,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Stats    gaps.Stats `json:"stats"`
	Written  int        `json:"written"`
	Pruned   int        `json:"pruned"`
}

type GapService interface {
	// ComputeGaps writes nothing when the upload's mapping does not have exactly
	// one revenue and one dimension header.
	ComputeGaps(ctx context.Context, orgID, uploadID uuid.UUID) (*GapResult, error)
	List(ctx context.Context, orgID uuid.UUID, periodStart string, uploadID *uuid.UUID) ([]*types.PerformanceGap, error)
}

type gapService struct {
	db      *gorm.DB
	log     *logger.Logger
	uploads repos.UploadRepo
	rows    repos.DataRowRepo
	gaps    repos.PerformanceGapRepo
	metrics *observability.Metrics
}

func NewGapService(db *gorm.DB, baseLog *logger.Logger, r repos.Repos, metrics *observability.Metrics) GapService {
	return &gapService{
		db:      db,
		log:     baseLog.With("service", "GapService"),
		uploads: r.Uploads,
		rows:    r.DataRows,
		gaps:    r.Gaps,
		metrics: metrics,
	}
}

func (s *gapService) ComputeGaps(ctx context.Context, orgID, uploadID uuid.UUID) (*GapResult, error) {
	res := &GapResult{UploadID: uploadID}
	dbc := dbctx.Context{Ctx: ctx}

	upload, err := s.uploads.GetForOrg(dbc, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("gaps: load upload", err)
	}
	if upload == nil {
		s.log.Info("Gap computation skipped: upload not found", "org_id", orgID, "upload_id", uploadID)
		res.Skipped, res.Reason = true, "upload_not_found"
		return res, nil
	}
	view := newUploadView(upload)
	if !gaps.Eligible(view.mapping) {
		s.log.Info("Gap computation skipped: mapping needs exactly one revenue and one dimension column",
			"org_id", orgID,
			"upload_id", uploadID,
		)
		res.Skipped, res.Reason = true, "mapping_not_eligible"
		return res, nil
	}

	stored, err := s.rows.ListByUpload(dbc, uploadID)
	if err != nil {
		return nil, db.Classify("gaps: load rows", err)
	}
	records := make([]record.Row, 0, len(stored))
	for _, r := range stored {
		records = append(records, decodeRow(r, view.headers))
	}
	computed, stats := gaps.Compute(records, view.mapping)
	res.Stats = stats
	s.metrics.AddDataQuality("compute_gaps", "rows_without_date", stats.RowsWithoutDate)

	rows := make([]*types.PerformanceGap, 0, len(computed))
	keep := map[string]struct{}{}
	for _, g := range computed {
		row := &types.PerformanceGap{
			OrgID:          orgID,
			UploadID:       uploadID,
			Metric:         types.GapMetricRevenue,
			Period:         types.PeriodWeekly,
			PeriodStart:    g.WeekStart,
			DimensionField: g.DimensionField,
			DimensionValue: g.DimensionValue,
			ActualValue:    g.Actual.InexactFloat64(),
			ExpectedValue:  g.Expected.InexactFloat64(),
			ExpectedSource: g.ExpectedSource,
			GapValue:       g.Gap.InexactFloat64(),
		}
		if g.GapPct != nil {
			pct := g.GapPct.InexactFloat64()
			row.GapPct = &pct
		}
		rows = append(rows, row)
		keep[gapKey(row)] = struct{}{}
	}

	err = s.db.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: txx}
		existing, err := s.gaps.ListByUpload(inner, uploadID)
		if err != nil {
			return fmt.Errorf("list existing gaps: %w", err)
		}
		var stale []uuid.UUID
		for _, g := range existing {
			if _, ok := keep[gapKey(g)]; !ok {
				stale = append(stale, g.ID)
			}
		}
		if err := s.gaps.DeleteByIDs(inner, stale); err != nil {
			return fmt.Errorf("prune gaps: %w", err)
		}
		res.Pruned = len(stale)
		if err := s.gaps.Upsert(inner, rows); err != nil {
			return fmt.Errorf("upsert gaps: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, db.Classify("gaps", err)
	}
	res.Written = len(rows)
	s.metrics.AddGaps(len(rows))
	s.log.Debug("Computed performance gaps", "org_id", orgID, "upload_id", uploadID, "groups", stats.Groups, "pruned", res.Pruned)
	return res, nil
}

func (s *gapService) List(ctx context.Context, orgID uuid.UUID, periodStart string, uploadID *uuid.UUID) ([]*types.PerformanceGap, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing org id", apperrors.ErrInvalidArgument)
	}
	week := ""
	if periodStart != "" {
		day, err := dates.ParseDay(periodStart)
		if err != nil {
			return nil, fmt.Errorf("%w: period_start: %v", apperrors.ErrInvalidArgument, err)
		}
		week = dates.Format(dates.WeekStart(day))
	}
	out, err := s.gaps.ListByOrgWeek(dbctx.Context{Ctx: ctx}, orgID, week, uploadID)
	if err != nil {
		return nil, db.Classify("gaps: list", err)
	}
	return out, nil
}

func gapKey(g *types.PerformanceGap) string {
	return g.PeriodStart + "\x00" + g.DimensionField + "\x00" + g.DimensionValue
}
