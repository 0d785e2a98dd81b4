package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/db"
	"github.com/aetherhq/aether-backend/internal/data/repos"
	types "github.com/aetherhq/aether-backend/internal/domain"
	domainjobs "github.com/aetherhq/aether-backend/internal/domain/jobs"
	"github.com/aetherhq/aether-backend/internal/pkg/ctxutil"
	"github.com/aetherhq/aether-backend/internal/pkg/dbctx"
	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// Pipeline dispatch modes.
const (
	DispatchInline   = "inline"
	DispatchWorker   = "worker"
	DispatchTemporal = "temporal"
)

// ParseDispatchMode falls back to the worker pool for unknown values.
func ParseDispatchMode(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case DispatchInline:
		return DispatchInline
	case DispatchTemporal:
		return DispatchTemporal
	default:
		return DispatchWorker
	}
}

type JobService interface {
	Enqueue(dbc dbctx.Context, orgID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	// Dispatch starts the Temporal workflow for a queued job. In worker and
	// inline modes it is a no-op: the worker pool claims queued rows itself.
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	// Start marks a job running for callers that execute it in-process.
	Start(ctx context.Context, jobID uuid.UUID) error
	// Complete records the terminal state of a job. A non-nil runErr marks it failed.
	Complete(ctx context.Context, jobID uuid.UUID, stage string, result any, runErr error) error
	Get(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	HasRunnable(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error)
	Mode() string
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier
	mode   string

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	mode string,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	return &jobService{
		db:                db,
		log:               baseLog.With("service", "JobService"),
		repo:              repo,
		notify:            notify,
		mode:              ParseDispatchMode(mode),
		temporal:          tc,
		temporalTaskQueue: strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Mode() string { return s.mode }

func (s *jobService) Enqueue(dbc dbctx.Context, orgID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing org_id", apperrors.ErrInvalidArgument)
	}
	if jobType == "" {
		return nil, fmt.Errorf("%w: missing job_type", apperrors.ErrInvalidArgument)
	}
	if s.mode == DispatchTemporal && s.temporal == nil {
		return nil, fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	ctxutil.GetTraceData(dbc.Ctx).Stamp(payload)
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:         uuid.New(),
		OrgID:      orgID,
		JobType:    jobType,
		EntityType: entityType,
		EntityID:   entityID,
		Status:     domainjobs.StatusQueued,
		Stage:      "queued",
		Message:    "Queued",
		Payload:    datatypes.JSON(b),
		Result:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, db.Classify("create job", err)
	}
	s.notify.JobCreated(job)

	// Inside a real transaction the workflow must not start before commit;
	// callers dispatch afterwards. gorm clones *gorm.DB freely, so check the
	// connection pool rather than pointer identity.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if s.mode != DispatchTemporal {
		return nil
	}
	if s.temporal == nil {
		return fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if jobID == uuid.Nil {
		return fmt.Errorf("%w: missing job id", apperrors.ErrInvalidArgument)
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return db.Classify("load job", err)
	}
	if job == nil {
		return fmt.Errorf("%w: job %s", apperrors.ErrNotFound, jobID)
	}

	err = s.startWorkflow(ctx, job, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE)
	if err == nil {
		return nil
	}
	var already *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &already) {
		return nil
	}

	// Best-effort: a job whose workflow never started is failed so the
	// backfill sweep can pick the upload up again.
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx}, jobID, domainjobs.FailedUpdates("dispatch", err.Error(), time.Now().UTC()))
	s.notify.JobFailed(job, "dispatch", err.Error())
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *jobService) startWorkflow(ctx context.Context, job *types.JobRun, reusePolicy enums.WorkflowIdReusePolicy) error {
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "aether"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    job.ID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, job.JobType, job.ID.String())
	return err
}

func (s *jobService) Start(ctx context.Context, jobID uuid.UUID) error {
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, jobID, []string{domainjobs.StatusCanceled}, domainjobs.RunningUpdates(time.Now().UTC()))
	if err != nil {
		return db.Classify("start job", err)
	}
	if !ok {
		return fmt.Errorf("%w: job %s is canceled or missing", apperrors.ErrPrecondition, jobID)
	}
	return nil
}

// Complete is a no-op for canceled jobs.
func (s *jobService) Complete(ctx context.Context, jobID uuid.UUID, stage string, result any, runErr error) error {
	if jobID == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	var updates map[string]interface{}
	if runErr != nil {
		updates = domainjobs.FailedUpdates(stage, runErr.Error(), now)
	} else {
		res, err := encodeResult(result)
		if err != nil {
			return err
		}
		updates = domainjobs.SucceededUpdates(stage, res, now)
	}
	dbc := dbctx.Context{Ctx: ctx}
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, jobID, []string{domainjobs.StatusCanceled}, updates)
	if err != nil {
		return db.Classify("complete job", err)
	}
	if !ok {
		return nil
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil || job == nil {
		return nil
	}
	if runErr != nil {
		s.notify.JobFailed(job, stage, runErr.Error())
	} else {
		s.notify.JobDone(job)
	}
	return nil
}

func encodeResult(result any) (datatypes.JSON, error) {
	if result == nil {
		return nil, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode job result: %w", err)
	}
	return datatypes.JSON(b), nil
}

func (s *jobService) Get(ctx context.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("%w: missing job id", apperrors.ErrInvalidArgument)
	}
	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, db.Classify("get job", err)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job %s", apperrors.ErrNotFound, jobID)
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	job, err := s.repo.GetLatestByEntity(dbctx.Context{Ctx: ctx}, orgID, entityType, entityID, jobType)
	if err != nil {
		return nil, db.Classify("get latest job", err)
	}
	return job, nil
}

func (s *jobService) HasRunnable(ctx context.Context, orgID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (bool, error) {
	ok, err := s.repo.HasRunnableForEntity(dbctx.Context{Ctx: ctx}, orgID, entityType, entityID, jobType)
	if err != nil {
		return false, db.Classify("has runnable job", err)
	}
	return ok, nil
}
