package ingest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/aetherhq/aether-backend/internal/data/repos/testutil"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	"github.com/aetherhq/aether-backend/internal/pkg/pointers"
)

func TestUploadAndDataRowRepos(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)

	uploads := NewUploadRepo(db, log)
	rows := NewDataRowRepo(db, log)

	orgID := uuid.New()
	up := &types.Upload{OrgID: orgID, FileName: "jan.csv", DataType: "revenue"}
	if err := uploads.Create(dbc, up); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if up.ID == uuid.Nil || up.Status != types.UploadStatusPending {
		t.Fatalf("BeforeCreate defaults not applied: %+v", up)
	}

	if got, err := uploads.GetForOrg(dbc, uuid.New(), up.ID); err != nil || got != nil {
		t.Fatalf("GetForOrg other org: got=%v err=%v", got, err)
	}

	seeded := testutil.SeedRows(t, ctx, tx, up, []string{"Date", "Amount"}, []map[string]any{
		{"Date": "2024-01-01", "Amount": "10"},
		{"Date": "2024-01-08", "Amount": "20"},
		{"Date": "bad", "Amount": "30"},
	}, "2024-01-01")

	unresolved, err := rows.ListUnresolved(dbc, up.ID)
	if err != nil || len(unresolved) != 2 {
		t.Fatalf("ListUnresolved: n=%d err=%v", len(unresolved), err)
	}
	if err := rows.SetResolvedDates(dbc, map[uuid.UUID]*string{
		seeded[1].ID: pointers.String("2024-01-08"),
		seeded[0].ID: nil,
	}); err != nil {
		t.Fatalf("SetResolvedDates: %v", err)
	}
	n, err := rows.CountUnresolved(dbc, up.ID)
	if err != nil || n != 2 {
		t.Fatalf("CountUnresolved: n=%d err=%v", n, err)
	}
	ids, err := rows.UploadIDsWithUnresolved(dbc, 10)
	if err != nil || len(ids) != 1 || ids[0] != up.ID {
		t.Fatalf("UploadIDsWithUnresolved: %v err=%v", ids, err)
	}

	inRange, err := rows.ListByOrgDateRange(dbc, orgID, "2024-01-02", "2024-01-31")
	if err != nil || len(inRange) != 1 || inRange[0].ID != seeded[1].ID {
		t.Fatalf("ListByOrgDateRange: %v err=%v", inRange, err)
	}

	all, err := rows.ListByUpload(dbc, up.ID)
	if err != nil || len(all) != 3 || all[2].RowIndex != 2 {
		t.Fatalf("ListByUpload: n=%d err=%v", len(all), err)
	}

	if err := uploads.UpdateFields(dbc, up.ID, map[string]interface{}{"status": types.UploadStatusReady, "row_count": 3}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, err := uploads.GetByID(dbc, up.ID)
	if err != nil || got == nil || got.Status != types.UploadStatusReady || got.RowCount != 3 {
		t.Fatalf("GetByID after update: %+v err=%v", got, err)
	}

	list, err := uploads.ListByOrg(dbc, orgID, 0, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListByOrg: n=%d err=%v", len(list), err)
	}

	if err := uploads.Delete(dbc, up.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	all, err = rows.ListByUpload(dbc, up.ID)
	if err != nil || len(all) != 0 {
		t.Fatalf("rows must cascade: n=%d err=%v", len(all), err)
	}
}

func TestKPISnapshotUpsertReplaces(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewKPISnapshotRepo(db, testutil.Logger(t))

	orgID := uuid.New()
	first := &types.KPISnapshot{
		OrgID:        orgID,
		Period:       types.PeriodDaily,
		SnapshotDate: "2024-03-04",
		Metrics: datatypes.NewJSONType(types.SnapshotMetrics{
			Revenue:    pointers.Float64(100),
			Attendance: pointers.Float64(4),
		}),
		SourceRows: 2,
	}
	if err := repo.Upsert(dbc, []*types.KPISnapshot{first}); err != nil {
		t.Fatalf("Upsert #1: %v", err)
	}
	second := &types.KPISnapshot{
		OrgID:        orgID,
		Period:       types.PeriodDaily,
		SnapshotDate: "2024-03-04",
		Metrics:      datatypes.NewJSONType(types.SnapshotMetrics{Revenue: pointers.Float64(70)}),
		SourceRows:   1,
	}
	if err := repo.Upsert(dbc, []*types.KPISnapshot{second}); err != nil {
		t.Fatalf("Upsert #2: %v", err)
	}

	got, err := repo.ListRange(dbc, orgID, types.PeriodDaily, "2024-03-01", "2024-03-31")
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one row per key, got %d", len(got))
	}
	m := got[0].Metrics.Data()
	if m.Revenue == nil || *m.Revenue != 70 || m.Attendance != nil || got[0].SourceRows != 1 {
		t.Fatalf("upsert must fully replace metrics: %+v rows=%d", m, got[0].SourceRows)
	}

	if err := repo.DeleteKeys(dbc, orgID, types.PeriodDaily, []string{"2024-03-04"}); err != nil {
		t.Fatalf("DeleteKeys: %v", err)
	}
	got, err = repo.ListRange(dbc, orgID, types.PeriodDaily, "2024-03-01", "2024-03-31")
	if err != nil || len(got) != 0 {
		t.Fatalf("DeleteKeys left %d rows err=%v", len(got), err)
	}
}

func TestPerformanceGapUpsertAndOntology(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	log := testutil.Logger(t)
	gaps := NewPerformanceGapRepo(db, log)
	onto := NewUploadOntologyRepo(db, log)

	orgID := uuid.New()
	up := testutil.SeedUpload(t, ctx, tx, orgID, "revenue", "")

	mk := func(value string, actual, gap float64) *types.PerformanceGap {
		return &types.PerformanceGap{
			OrgID:          orgID,
			UploadID:       up.ID,
			Metric:         "revenue",
			Period:         types.PeriodWeekly,
			PeriodStart:    "2024-01-01",
			DimensionField: "Studio",
			DimensionValue: value,
			ActualValue:    actual,
			ExpectedValue:  100,
			ExpectedSource: "week_max",
			GapValue:       gap,
		}
	}
	if err := gaps.Upsert(dbc, []*types.PerformanceGap{mk("A", 100, 0), mk("B", 80, 20)}); err != nil {
		t.Fatalf("Upsert #1: %v", err)
	}
	if err := gaps.Upsert(dbc, []*types.PerformanceGap{mk("B", 90, 10)}); err != nil {
		t.Fatalf("Upsert #2: %v", err)
	}
	week, err := gaps.ListByOrgWeek(dbc, orgID, "2024-01-01", nil)
	if err != nil || len(week) != 2 {
		t.Fatalf("ListByOrgWeek: n=%d err=%v", len(week), err)
	}
	for _, g := range week {
		if g.DimensionValue == "B" && g.GapValue != 10 {
			t.Fatalf("upsert did not replace B: %+v", g)
		}
	}
	if err := gaps.DeleteByIDs(dbc, []uuid.UUID{week[0].ID}); err != nil {
		t.Fatalf("DeleteByIDs: %v", err)
	}
	left, err := gaps.ListByUpload(dbc, up.ID)
	if err != nil || len(left) != 1 {
		t.Fatalf("ListByUpload: n=%d err=%v", len(left), err)
	}

	if err := onto.Upsert(dbc, &types.UploadOntology{UploadID: up.ID, OrgID: orgID, Detector: "heuristic", Guess: datatypes.JSON([]byte(`{"entities":[]}`)), Confidence: 0.2}); err != nil {
		t.Fatalf("ontology Upsert #1: %v", err)
	}
	if err := onto.Upsert(dbc, &types.UploadOntology{UploadID: up.ID, OrgID: orgID, Detector: "heuristic", Guess: datatypes.JSON([]byte(`{"entities":[]}`)), Confidence: 0.9}); err != nil {
		t.Fatalf("ontology Upsert #2: %v", err)
	}
	got, err := onto.GetByUpload(dbc, up.ID)
	if err != nil || got == nil || got.Confidence != 0.9 {
		t.Fatalf("GetByUpload: %+v err=%v", got, err)
	}
}
