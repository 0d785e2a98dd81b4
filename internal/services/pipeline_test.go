package services

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	types "github.com/aetherhq/aether-backend/internal/domain"
	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
)

func TestPipelineRunMarksUploadReady(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	u := h.seed(t, org, studioMapping, studioHeaders, []map[string]any{
		{"Date": "2024-01-01", "Revenue": "100", "Studio": "A"},
		{"Date": "2024-01-02", "Revenue": "80", "Studio": "B"},
	})

	res, err := h.pipeline.Run(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != types.UploadStatusReady {
		t.Fatalf("status = %q want ready", res.Status)
	}
	if len(res.Stages) != len(PipelineStages) {
		t.Fatalf("stages = %d", len(res.Stages))
	}
	for _, st := range res.Stages {
		if st.Status != StageStatusOK {
			t.Fatalf("stage %s status=%s error=%s", st.Stage, st.Status, st.Error)
		}
	}
	got := h.upload(t, u.ID)
	if got.Status != types.UploadStatusReady || got.ProcessedAt == nil {
		t.Fatalf("upload status=%s processed_at=%v", got.Status, got.ProcessedAt)
	}

	onto, err := h.ontology.Get(ctx, org, u.ID)
	if err != nil || onto == nil {
		t.Fatalf("ontology not stored: %v %v", onto, err)
	}
	var guess OntologyGuess
	if err := json.Unmarshal(onto.Guess, &guess); err != nil {
		t.Fatalf("decode guess: %v", err)
	}
	if len(guess.Measures) != 1 || guess.Measures[0] != "Revenue" || guess.Confidence != 1 {
		t.Fatalf("guess = %+v", guess)
	}
}

func TestPipelineGapFailureDoesNotFailUpload(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	// Two dimension columns: gaps skip, aggregation still succeeds.
	u := h.seed(t, org, `{"Date":"date","Revenue":"revenue","Studio":"dimension","Room":"dimension"}`,
		[]string{"Date", "Revenue", "Studio", "Room"},
		[]map[string]any{{"Date": "2024-01-01", "Revenue": "10", "Studio": "A", "Room": "1"}},
	)
	res, err := h.pipeline.Run(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != types.UploadStatusReady {
		t.Fatalf("status = %q", res.Status)
	}
	for _, st := range res.Stages {
		if st.Stage == StageComputeGaps && st.Status != StageStatusSkipped {
			t.Fatalf("compute_gaps status = %s", st.Status)
		}
	}
}

func TestPipelineFinalizeWithoutAggregateMarksError(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	u := h.seed(t, org, studioMapping, studioHeaders, nil)

	res, err := h.pipeline.Finalize(ctx, org, u.ID, []StageOutcome{
		{Stage: StageAggregate, Status: StageStatusError, Error: "boom"},
		{Stage: StageComputeGaps, Status: StageStatusOK},
	})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	got := h.upload(t, u.ID)
	if res.Status != types.UploadStatusError || got.Status != types.UploadStatusError || got.Error != "aggregate: boom" {
		t.Fatalf("status=%s upload=%s/%q", res.Status, got.Status, got.Error)
	}
}

func TestPipelineExecuteStageRejectsUnknownStage(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	out := h.pipeline.ExecuteStage(t.Context(), "nope", uuid.New(), uuid.New())
	if out.Status != StageStatusError || out.Error == "" {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestPipelineDispatchWorkerModeQueuesJob(t *testing.T) {
	h := newHarness(t, DispatchWorker)
	ctx := t.Context()
	org := uuid.New()
	u := h.seed(t, org, studioMapping, studioHeaders, []map[string]any{
		{"Date": "2024-01-01", "Revenue": "100", "Studio": "A"},
	})

	job, err := h.pipeline.Dispatch(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if job.Status != domainjobs.StatusQueued || job.JobType != PipelineJobType || job.EntityID == nil || *job.EntityID != u.ID {
		t.Fatalf("job = %+v", job)
	}
	pending, err := h.jobs.HasRunnable(ctx, org, PipelineEntityType, u.ID, PipelineJobType)
	if err != nil || !pending {
		t.Fatalf("HasRunnable = %v err=%v", pending, err)
	}
	if _, err := h.pipeline.Dispatch(ctx, org, uuid.New()); err == nil {
		t.Fatalf("Dispatch for a missing upload should fail")
	}
}

func TestPipelineDispatchInlineCompletesJob(t *testing.T) {
	h := newHarness(t, DispatchInline)
	ctx := t.Context()
	org := uuid.New()
	u := h.seed(t, org, studioMapping, studioHeaders, []map[string]any{
		{"Date": "2024-01-01", "Revenue": "100", "Studio": "A"},
	})

	job, err := h.pipeline.Dispatch(ctx, org, u.ID)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	h.pipeline.Wait()

	done, err := h.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get job: %v", err)
	}
	if done.Status != domainjobs.StatusSucceeded || done.Attempts != 1 || done.Progress != 100 {
		t.Fatalf("job status=%s attempts=%d progress=%d", done.Status, done.Attempts, done.Progress)
	}
	var res PipelineResult
	if err := json.Unmarshal(done.Result, &res); err != nil || res.Status != types.UploadStatusReady {
		t.Fatalf("job result = %s err=%v", done.Result, err)
	}
	if got := h.upload(t, u.ID).Status; got != types.UploadStatusReady {
		t.Fatalf("upload status = %s", got)
	}
}
