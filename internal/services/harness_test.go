package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/clients/redis"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	"github.com/aetherhq/aether-backend/internal/data/repos/testutil"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
)

const studioMapping = `{"Date":"date","Revenue":"revenue","Studio":"dimension"}`

var studioHeaders = []string{"Date", "Revenue", "Studio"}

type harness struct {
	db       *gorm.DB
	repos    repos.Repos
	cache    redis.Cache
	agg      AggregationService
	kpi      KPIService
	gaps     GapService
	ontology OntologyService
	jobs     JobService
	pipeline PipelineService
	uploads  UploadService
	backfill BackfillService
}

func newHarness(t *testing.T, mode string) *harness {
	t.Helper()
	log := testutil.Logger(t)
	db := testutil.DB(t)
	r := repos.New(db, log)
	cat := catalog.Default()
	h := &harness{db: db, repos: r, cache: redis.NewMemoryCache()}
	h.agg = NewAggregationService(db, log, r, extractor.New(cat), h.cache, nil)
	h.kpi = NewKPIService(db, log, r, h.cache, time.Minute, nil)
	h.gaps = NewGapService(db, log, r, nil)
	h.ontology = NewOntologyService(db, log, r, NewHeuristicDetector(cat))
	h.jobs = NewJobService(db, log, r.JobRuns, NewJobNotifier(log, nil), mode, nil, "")
	h.pipeline = NewPipelineService(db, log, r, h.agg, h.gaps, h.ontology, h.jobs, nil)
	h.uploads = NewUploadService(db, log, r, h.agg, h.pipeline, nil, cat, UploadConfig{MaxBytes: 1 << 20, BatchSize: 2}, nil)
	h.backfill = NewBackfillService(db, log, r, h.agg, h.gaps, h.jobs)
	return h
}

func (h *harness) seed(t *testing.T, orgID uuid.UUID, mapping string, headers []string, rows []map[string]any, resolvedDates ...string) *types.Upload {
	t.Helper()
	ctx := t.Context()
	u := testutil.SeedUpload(t, ctx, h.db, orgID, "revenue", mapping)
	testutil.SeedRows(t, ctx, h.db, u, headers, rows, resolvedDates...)
	return u
}

func (h *harness) snapshotRevenue(t *testing.T, orgID uuid.UUID, period, day string) (float64, bool) {
	t.Helper()
	rows, err := h.repos.Snapshots.ListRange(dbctx.Context{Ctx: context.Background()}, orgID, period, day, day)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(rows) == 0 {
		return 0, false
	}
	rev := rows[0].Metrics.Data().Revenue
	if rev == nil {
		return 0, true
	}
	return *rev, true
}

func (h *harness) upload(t *testing.T, id uuid.UUID) *types.Upload {
	t.Helper()
	u, err := h.repos.Uploads.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || u == nil {
		t.Fatalf("GetByID(%s): %v %v", id, u, err)
	}
	return u
}
