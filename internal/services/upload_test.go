package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/aetherhq/aether-backend/internal/domain"
	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
	"github.com/aetherhq/aether-backend/internal/ingestion/mapping"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
)

const studioCSV = "Date,Revenue,Studio\n" +
	"2024-01-01,100,A\n" +
	"2024-01-02,50,B\n" +
	",10,C\n"

func TestIngestCSVInfersMappingAndQueuesPipeline(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()

	out, err := h.uploads.Ingest(ctx, IngestInput{
		OrgID:    org,
		FileName: "january.csv",
		DataType: " Revenue ",
		Body:     strings.NewReader(studioCSV),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	u := out.Upload
	if u.Status != types.UploadStatusProcessing || u.RowCount != 3 || u.RowsWithoutDate != 1 {
		t.Fatalf("upload status=%s rows=%d without_date=%d", u.Status, u.RowCount, u.RowsWithoutDate)
	}
	if u.DataType != "revenue" || u.MappingSource != MappingSourceInferred {
		t.Fatalf("data_type=%q mapping_source=%q", u.DataType, u.MappingSource)
	}
	m := mapping.Parse(u.ColumnMapping)
	for role, want := range map[mapping.Role]string{
		mapping.RoleDate:      "Date",
		mapping.RoleRevenue:   "Revenue",
		mapping.RoleDimension: "Studio",
	} {
		if got, _ := m.Header(role); got != want {
			t.Fatalf("inferred %s header = %q want %q", role, got, want)
		}
	}
	if out.Job == nil || out.Job.Status != domainjobs.StatusQueued {
		t.Fatalf("job = %+v", out.Job)
	}

	stored, err := h.repos.DataRows.ListByUpload(dbctx.Context{Ctx: ctx}, u.ID)
	if err != nil || len(stored) != 3 {
		t.Fatalf("rows = %d err=%v", len(stored), err)
	}
	if stored[0].ResolvedDate == nil || *stored[0].ResolvedDate != "2024-01-01" {
		t.Fatalf("row 0 resolved_date = %v", stored[0].ResolvedDate)
	}
	if string(stored[0].Fields) != `{"Date":"2024-01-01","Revenue":"100","Studio":"A"}` {
		t.Fatalf("row 0 fields = %s", stored[0].Fields)
	}

	if _, err := h.pipeline.Run(ctx, org, u.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, ok := h.snapshotRevenue(t, org, "weekly", "2024-01-01"); !ok || got != 150 {
		t.Fatalf("weekly revenue = %v (present=%v) want 150", got, ok)
	}
}

func TestIngestRejectsBadInput(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	cases := []struct {
		name string
		in   IngestInput
	}{
		{"no org", IngestInput{FileName: "a.csv", Body: strings.NewReader(studioCSV)}},
		{"extension", IngestInput{OrgID: org, FileName: "a.pdf", Body: strings.NewReader(studioCSV)}},
		{"mapping", IngestInput{OrgID: org, FileName: "a.csv", Mapping: []byte(`["Date"]`), Body: strings.NewReader(studioCSV)}},
		{"size", IngestInput{OrgID: org, FileName: "a.csv", Body: strings.NewReader(strings.Repeat("x", 2<<20))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.uploads.Ingest(ctx, tc.in); !errors.Is(err, apperrors.ErrInvalidArgument) {
				t.Fatalf("err = %v want ErrInvalidArgument", err)
			}
		})
	}
}

func TestIngestParseFailureMarksUploadError(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	out, err := h.uploads.Ingest(ctx, IngestInput{
		OrgID:    uuid.New(),
		FileName: "broken.xlsx",
		Body:     strings.NewReader("not a workbook"),
	})
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("err = %v want ErrInvalidArgument", err)
	}
	got := h.upload(t, out.Upload.ID)
	if got.Status != types.UploadStatusError || !strings.HasPrefix(got.Error, "parse:") {
		t.Fatalf("upload status=%s error=%q", got.Status, got.Error)
	}
}

func TestUpdateMappingReresolvesDates(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	csv := "Posted,Revenue,Studio\n2024-01-01,100,A\n2024-01-02,40,B\n"

	out, err := h.uploads.Ingest(ctx, IngestInput{
		OrgID:    org,
		FileName: "posted.csv",
		Mapping:  []byte(`{"Revenue":"revenue","Studio":"dimension"}`),
		Body:     strings.NewReader(csv),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if out.Upload.RowsWithoutDate != 2 || out.Upload.MappingSource != MappingSourceUser {
		t.Fatalf("rows_without_date=%d source=%s", out.Upload.RowsWithoutDate, out.Upload.MappingSource)
	}

	updated, err := h.uploads.UpdateMapping(ctx, org, out.Upload.ID, []byte(`{"Posted":"date","Revenue":"revenue","Studio":"dimension"}`))
	if err != nil {
		t.Fatalf("UpdateMapping: %v", err)
	}
	if updated.Upload.RowsWithoutDate != 0 || updated.Upload.Status != types.UploadStatusProcessing {
		t.Fatalf("after update rows_without_date=%d status=%s", updated.Upload.RowsWithoutDate, updated.Upload.Status)
	}
	if _, err := h.pipeline.Run(ctx, org, out.Upload.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, ok := h.snapshotRevenue(t, org, "daily", "2024-01-02"); !ok || got != 40 {
		t.Fatalf("daily 2024-01-02 revenue = %v (present=%v) want 40", got, ok)
	}

	if _, err := h.uploads.UpdateMapping(ctx, org, out.Upload.ID, []byte(`"Posted"`)); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("non-object mapping err = %v", err)
	}
	if _, err := h.uploads.UpdateMapping(ctx, uuid.New(), out.Upload.ID, []byte(`{}`)); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("foreign org err = %v", err)
	}
}

func TestBackfillPatchesUndatedRows(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	csv := "Posted,Revenue\n2024-03-04,70\nsoon,5\n"
	out, err := h.uploads.Ingest(ctx, IngestInput{
		OrgID:    org,
		FileName: "posted.csv",
		Mapping:  []byte(`{"Revenue":"revenue"}`),
		Body:     strings.NewReader(csv),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	uploadID := out.Upload.ID

	report, err := h.backfill.Run(ctx, BackfillOptions{})
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(report.Uploads) != 1 || report.Uploads[0].Skipped != "pipeline_pending" {
		t.Fatalf("queued pipeline should defer the sweep: %+v", report.Uploads)
	}
	if err := h.jobs.Complete(ctx, out.Job.ID, "done", nil, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// The mapping gains a date column without going through UpdateMapping.
	if err := h.repos.Uploads.UpdateFields(dbctx.Context{Ctx: ctx}, uploadID, map[string]interface{}{
		"column_mapping": datatypes.JSON(`{"Posted":"date","Revenue":"revenue"}`),
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	dry, err := h.backfill.Run(ctx, BackfillOptions{UploadIDs: []uuid.UUID{uploadID}, DryRun: true})
	if err != nil || dry.Patched != 1 || dry.StillMissing != 1 {
		t.Fatalf("dry run = %+v err=%v", dry, err)
	}
	if _, ok := h.snapshotRevenue(t, org, "daily", "2024-03-04"); ok {
		t.Fatalf("dry run must not write snapshots")
	}

	report, err = h.backfill.Run(ctx, BackfillOptions{UploadIDs: []uuid.UUID{uploadID}})
	if err != nil || report.Patched != 1 || report.Failed != 0 {
		t.Fatalf("backfill = %+v err=%v", report, err)
	}
	if got, ok := h.snapshotRevenue(t, org, "daily", "2024-03-04"); !ok || got != 70 {
		t.Fatalf("daily 2024-03-04 revenue = %v (present=%v) want 70", got, ok)
	}
	if got := h.upload(t, uploadID).RowsWithoutDate; got != 1 {
		t.Fatalf("rows_without_date = %d want 1", got)
	}
}
