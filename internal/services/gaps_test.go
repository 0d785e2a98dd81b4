package services

import (
	"testing"

	"github.com/google/uuid"

	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
)

func TestComputeGapsWritesPrunesAndLists(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	u := h.seed(t, org, studioMapping, studioHeaders, []map[string]any{
		{"Date": "2024-01-01", "Revenue": "100", "Studio": "A"},
		{"Date": "2024-01-03", "Revenue": "80", "Studio": "B"},
	})

	stale := &types.PerformanceGap{
		OrgID:          org,
		UploadID:       u.ID,
		Metric:         types.GapMetricRevenue,
		Period:         types.PeriodWeekly,
		PeriodStart:    "2023-06-05",
		DimensionField: "Studio",
		DimensionValue: "Z",
	}
	if err := h.repos.Gaps.Upsert(dbctx.Context{Ctx: ctx}, []*types.PerformanceGap{stale}); err != nil {
		t.Fatalf("seed stale gap: %v", err)
	}

	res, err := h.gaps.ComputeGaps(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("ComputeGaps: %v", err)
	}
	if res.Skipped || res.Written != 2 || res.Pruned != 1 {
		t.Fatalf("result = %+v want 2 written, 1 pruned", res)
	}

	// Any day inside the week selects it.
	list, err := h.gaps.List(ctx, org, "2024-01-03", nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d gaps want 2", len(list))
	}
	byValue := map[string]*types.PerformanceGap{}
	for _, g := range list {
		byValue[g.DimensionValue] = g
	}
	b := byValue["B"]
	if b == nil || b.ExpectedValue != 100 || b.GapValue != 20 || b.GapPct == nil || *b.GapPct != 20 {
		t.Fatalf("gap for B = %+v", b)
	}
	if b.ExpectedSource != types.ExpectedFromWeekMax {
		t.Fatalf("expected source = %q", b.ExpectedSource)
	}
	if a := byValue["A"]; a == nil || a.GapValue != 0 {
		t.Fatalf("gap for A = %+v", a)
	}
}

func TestComputeGapsIneligibleMappingWritesNothing(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	headers := []string{"Date", "Revenue", "Studio", "Instructor"}
	u := h.seed(t, org, `{"Date":"date","Revenue":"revenue","Studio":"dimension","Instructor":"dimension"}`, headers, []map[string]any{
		{"Date": "2024-01-01", "Revenue": "100", "Studio": "A", "Instructor": "Kim"},
	})
	res, err := h.gaps.ComputeGaps(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("ComputeGaps: %v", err)
	}
	if !res.Skipped || res.Reason != "mapping_not_eligible" {
		t.Fatalf("result = %+v", res)
	}
	list, err := h.gaps.List(ctx, org, "", &u.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("ineligible mapping wrote %d gaps", len(list))
	}
}
