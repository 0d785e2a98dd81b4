package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

const (
	StageAggregate      = "aggregate"
	StageComputeGaps    = "compute_gaps"
	StageDetectOntology = "detect_ontology"

	PipelineJobType    = "upload_pipeline"
	PipelineEntityType = "upload"

	StageStatusOK      = "ok"
	StageStatusSkipped = "skipped"
	StageStatusError   = "error"
)

// PipelineStages run in this order when executed sequentially (Temporal);
// the in-process runner starts them together.
var PipelineStages = []string{StageAggregate, StageComputeGaps, StageDetectOntology}

type StageOutcome struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Result     any    `json:"result,omitempty"`
}

type PipelineResult struct {
	UploadID uuid.UUID      `json:"upload_id"`
	Status   string         `json:"status"`
	Stages   []StageOutcome `json:"stages"`
}

// PipelineService runs the post-ingestion stages for an upload.
//
// Stage failures are isolated: a failing stage never cancels its siblings.
// The upload becomes ready when aggregation succeeds; gap and ontology
// failures only show up in the stage outcomes.
type PipelineService interface {
	Run(ctx context.Context, orgID, uploadID uuid.UUID) (*PipelineResult, error)
	ExecuteStage(ctx context.Context, stage string, orgID, uploadID uuid.UUID) StageOutcome
	Finalize(ctx context.Context, orgID, uploadID uuid.UUID, outcomes []StageOutcome) (*PipelineResult, error)
	// Dispatch records a job_run for the upload and hands it to the configured
	// runner (inline goroutine, worker pool, or Temporal).
	Dispatch(ctx context.Context, orgID, uploadID uuid.UUID) (*types.JobRun, error)
	// Wait blocks until inline runs started by Dispatch have finished.
	Wait()
}

type pipelineService struct {
	db       *gorm.DB
	log      *logger.Logger
	uploads  repos.UploadRepo
	agg      AggregationService
	gaps     GapService
	ontology OntologyService
	jobs     JobService
	metrics  *observability.Metrics

	inflight sync.WaitGroup
}

func NewPipelineService(
	db *gorm.DB,
	baseLog *logger.Logger,
	r repos.Repos,
	agg AggregationService,
	gapSvc GapService,
	ontology OntologyService,
	jobs JobService,
	metrics *observability.Metrics,
) PipelineService {
	return &pipelineService{
		db:       db,
		log:      baseLog.With("service", "PipelineService"),
		uploads:  r.Uploads,
		agg:      agg,
		gaps:     gapSvc,
		ontology: ontology,
		jobs:     jobs,
		metrics:  metrics,
	}
}

func (s *pipelineService) Run(ctx context.Context, orgID, uploadID uuid.UUID) (*PipelineResult, error) {
	outcomes := make([]StageOutcome, len(PipelineStages))
	// A plain Group: no derived context, so one stage's error cannot cancel another.
	var g errgroup.Group
	for i, stage := range PipelineStages {
		g.Go(func() error {
			outcomes[i] = s.ExecuteStage(ctx, stage, orgID, uploadID)
			return nil
		})
	}
	_ = g.Wait()
	return s.Finalize(ctx, orgID, uploadID, outcomes)
}

func (s *pipelineService) ExecuteStage(ctx context.Context, stage string, orgID, uploadID uuid.UUID) (out StageOutcome) {
	ctx, span := observability.StartStage(ctx, stage, orgID.String(), uploadID.String())
	defer span.End()
	start := time.Now()
	out.Stage = stage

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Pipeline stage panic", "stage", stage, "upload_id", uploadID, "panic", r)
			out.Status = StageStatusError
			out.Error = fmt.Sprintf("panic: %v", r)
			out.Result = nil
		}
		out.DurationMS = time.Since(start).Milliseconds()
		if out.Status == StageStatusError {
			span.SetStatus(codes.Error, out.Error)
		}
		s.metrics.ObserveStage(stage, out.Status, time.Since(start))
	}()

	res, err := s.runStage(ctx, stage, orgID, uploadID)
	switch {
	case err != nil:
		span.RecordError(err)
		s.log.Warn("Pipeline stage failed", "stage", stage, "org_id", orgID, "upload_id", uploadID, "error", err)
		out.Status = StageStatusError
		out.Error = err.Error()
	case stageSkipped(res):
		out.Status = StageStatusSkipped
		out.Result = res
	default:
		out.Status = StageStatusOK
		out.Result = res
	}
	return out
}

func (s *pipelineService) runStage(ctx context.Context, stage string, orgID, uploadID uuid.UUID) (any, error) {
	switch stage {
	case StageAggregate:
		return s.agg.Aggregate(ctx, orgID, uploadID)
	case StageComputeGaps:
		return s.gaps.ComputeGaps(ctx, orgID, uploadID)
	case StageDetectOntology:
		if s.ontology == nil {
			return &OntologyResult{UploadID: uploadID, Skipped: true, Reason: "detector_disabled"}, nil
		}
		return s.ontology.Detect(ctx, orgID, uploadID)
	default:
		return nil, fmt.Errorf("%w: unknown pipeline stage %q", apperrors.ErrInvalidArgument, stage)
	}
}

func stageSkipped(res any) bool {
	switch r := res.(type) {
	case *AggregationResult:
		return r != nil && r.Skipped
	case *GapResult:
		return r != nil && r.Skipped
	case *OntologyResult:
		return r != nil && r.Skipped
	}
	return false
}

func (s *pipelineService) Finalize(ctx context.Context, orgID, uploadID uuid.UUID, outcomes []StageOutcome) (*PipelineResult, error) {
	out := &PipelineResult{UploadID: uploadID, Stages: outcomes}
	dbc := dbctx.Context{Ctx: ctx}
	upload, err := s.uploads.GetForOrg(dbc, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("pipeline: load upload", err)
	}
	if upload == nil {
		out.Status = StageStatusSkipped
		return out, nil
	}

	status, msg := types.UploadStatusError, "aggregate stage did not run"
	for _, o := range outcomes {
		if o.Stage != StageAggregate {
			continue
		}
		if o.Status == StageStatusError {
			msg = "aggregate: " + o.Error
		} else {
			status, msg = types.UploadStatusReady, ""
		}
	}
	updates := map[string]interface{}{"status": status, "error": msg}
	if status == types.UploadStatusReady {
		now := time.Now().UTC()
		updates["processed_at"] = &now
	}
	if err := s.uploads.UpdateFields(dbc, uploadID, updates); err != nil {
		return nil, db.Classify("pipeline: update upload", err)
	}
	out.Status = status
	s.log.Info("Upload pipeline finished", "org_id", orgID, "upload_id", uploadID, "status", status)
	return out, nil
}

func (s *pipelineService) Dispatch(ctx context.Context, orgID, uploadID uuid.UUID) (*types.JobRun, error) {
	upload, err := s.uploads.GetForOrg(dbctx.Context{Ctx: ctx}, orgID, uploadID)
	if err != nil {
		return nil, db.Classify("pipeline: load upload", err)
	}
	if upload == nil {
		return nil, fmt.Errorf("%w: upload %s", apperrors.ErrNotFound, uploadID)
	}
	entityID := uploadID
	job, err := s.jobs.Enqueue(dbctx.Context{Ctx: ctx}, orgID, PipelineJobType, PipelineEntityType, &entityID, map[string]any{
		"org_id":    orgID.String(),
		"upload_id": uploadID.String(),
	})
	if err != nil {
		return job, err
	}
	if s.jobs.Mode() != DispatchInline {
		return job, nil
	}
	if err := s.jobs.Start(ctx, job.ID); err != nil {
		return job, err
	}

	// The run outlives the request that triggered it.
	runCtx := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		res, runErr := s.Run(runCtx, orgID, uploadID)
		if err := s.jobs.Complete(runCtx, job.ID, "done", res, runErr); err != nil {
			s.log.Warn("Failed to complete inline pipeline job", "job_id", job.ID, "error", err)
		}
	}()
	return job, nil
}

func (s *pipelineService) Wait() { s.inflight.Wait() }
