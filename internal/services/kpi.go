package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/analytics/rollup"
	"github.com/aetherhq/aether-backend/internal/analytics/snapshots"
	"github.com/aetherhq/aether-backend/internal/clients/redis"
	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type KPIPoint struct {
	Date    string                `json:"date"`
	Metrics types.SnapshotMetrics `json:"metrics"`
}

type KPIResult struct {
	OrgID         uuid.UUID             `json:"org_id"`
	Period        string                `json:"period"`
	Start         string                `json:"start"`
	End           string                `json:"end"`
	PreviousStart string                `json:"previous_start"`
	PreviousEnd   string                `json:"previous_end"`
	Current       types.SnapshotMetrics `json:"current"`
	Previous      types.SnapshotMetrics `json:"previous"`
	// ChangePct is keyed by metric name; a nil value means the previous total was zero.
	ChangePct map[string]*float64 `json:"change_pct"`
	Forecast  *float64            `json:"forecast"`
	Buckets   int                 `json:"buckets"`
	Series    []KPIPoint          `json:"series"`
	Cached    bool                `json:"-"`
}

type KPIService interface {
	GetKPIs(ctx context.Context, orgID uuid.UUID, period, start, end string) (*KPIResult, error)
	InvalidateOrg(ctx context.Context, orgID uuid.UUID)
}

type kpiService struct {
	db        *gorm.DB
	log       *logger.Logger
	snapshots repos.KPISnapshotRepo
	cache     redis.Cache
	ttl       time.Duration
	metrics   *observability.Metrics
}

func NewKPIService(db *gorm.DB, baseLog *logger.Logger, r repos.Repos, cache redis.Cache, ttl time.Duration, metrics *observability.Metrics) KPIService {
	return &kpiService{
		db:        db,
		log:       baseLog.With("service", "KPIService"),
		snapshots: r.Snapshots,
		cache:     cache,
		ttl:       ttl,
		metrics:   metrics,
	}
}

func (s *kpiService) GetKPIs(ctx context.Context, orgID uuid.UUID, period, start, end string) (*KPIResult, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing org id", apperrors.ErrInvalidArgument)
	}
	p, err := snapshots.ParsePeriod(period)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	r, err := rollup.NewRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}

	key := kpiCacheKey(orgID, p, r)
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	dbc := dbctx.Context{Ctx: ctx}
	current, err := s.series(dbc, orgID, p, r)
	if err != nil {
		return nil, err
	}
	prevRange := r.Previous()
	previous, err := s.series(dbc, orgID, p, prevRange)
	if err != nil {
		return nil, err
	}

	sum := rollup.Summarize(p, r, current, previous)
	out := &KPIResult{
		OrgID:         orgID,
		Period:        string(p),
		Start:         r.StartDay(),
		End:           r.EndDay(),
		PreviousStart: prevRange.StartDay(),
		PreviousEnd:   prevRange.EndDay(),
		Current:       snapshotMetrics(sum.Current),
		Previous:      snapshotMetrics(sum.Previous),
		ChangePct:     map[string]*float64{},
		Forecast:      sum.Forecast,
		Buckets:       sum.Buckets,
		Series:        make([]KPIPoint, 0, len(current)),
	}
	for _, f := range extractor.Fields {
		out.ChangePct[string(f)] = sum.Change[f]
	}
	for _, pt := range current {
		out.Series = append(out.Series, KPIPoint{Date: pt.Date, Metrics: snapshotMetrics(pt.Metrics)})
	}
	s.store(ctx, key, out)
	return out, nil
}

func (s *kpiService) series(dbc dbctx.Context, orgID uuid.UUID, p snapshots.Period, r rollup.Range) ([]rollup.Point, error) {
	rows, err := s.snapshots.ListRange(dbc, orgID, string(p), r.StartDay(), r.EndDay())
	if err != nil {
		return nil, db.Classify("kpi: list snapshots", err)
	}
	out := make([]rollup.Point, 0, len(rows))
	for _, row := range rows {
		out = append(out, rollup.Point{Date: row.SnapshotDate, Metrics: metricsFromSnapshot(row.Metrics.Data())})
	}
	return out, nil
}

func (s *kpiService) cached(ctx context.Context, key string) (*KPIResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("KPI cache read failed", "key", key, "error", err)
		return nil, false
	}
	s.metrics.IncKPICache(ok)
	if !ok {
		return nil, false
	}
	var out KPIResult
	if err := json.Unmarshal(raw, &out); err != nil {
		s.log.Warn("KPI cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	out.Cached = true
	return &out, true
}

func (s *kpiService) store(ctx context.Context, key string, res *KPIResult) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.log.Warn("KPI cache write failed", "key", key, "error", err)
	}
}

func (s *kpiService) InvalidateOrg(ctx context.Context, orgID uuid.UUID) {
	invalidateKPICache(ctx, s.cache, s.log, orgID)
}

func kpiCachePrefix(orgID uuid.UUID) string {
	return "kpi:" + orgID.String() + ":"
}

// kpiCacheKey is kpi:{org}:{period}:{start}:{end}.
func kpiCacheKey(orgID uuid.UUID, p snapshots.Period, r rollup.Range) string {
	return kpiCachePrefix(orgID) + string(p) + ":" + r.StartDay() + ":" + r.EndDay()
}

func invalidateKPICache(ctx context.Context, cache redis.Cache, log *logger.Logger, orgID uuid.UUID) {
	if cache == nil {
		return
	}
	if err := cache.DeletePrefix(ctx, kpiCachePrefix(orgID)); err != nil && log != nil {
		log.Warn("KPI cache invalidation failed", "org_id", orgID, "error", err)
	}
}
