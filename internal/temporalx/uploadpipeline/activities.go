package uploadpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	apperrors "github.com/aetherhq/aether-backend/internal/pkg/errors"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
)

type Activities struct {
	Log      *logger.Logger
	Pipeline services.PipelineService
	Jobs     services.JobService
}

// Start resolves the job's target and marks it running.
func (a *Activities) Start(ctx context.Context, jobID string) (Target, error) {
	id, err := uuid.Parse(jobID)
	if err != nil || id == uuid.Nil {
		return Target{}, temporal.NewNonRetryableApplicationError("invalid job_id", "InvalidJobID", err)
	}
	job, err := a.Jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Target{}, temporal.NewNonRetryableApplicationError("job not found", "JobNotFound", err)
		}
		return Target{}, err
	}

	var payload struct {
		OrgID    string `json:"org_id"`
		UploadID string `json:"upload_id"`
	}
	_ = json.Unmarshal(job.Payload, &payload)
	target := Target{JobID: job.ID.String(), OrgID: payload.OrgID, UploadID: payload.UploadID}
	if target.OrgID == "" {
		target.OrgID = job.OrgID.String()
	}
	if target.UploadID == "" && job.EntityID != nil {
		target.UploadID = job.EntityID.String()
	}
	if _, err := uuid.Parse(target.UploadID); err != nil {
		_ = a.Jobs.Complete(ctx, job.ID, "validate", nil, fmt.Errorf("missing upload_id"))
		return Target{}, temporal.NewNonRetryableApplicationError("missing upload_id", "InvalidPayload", err)
	}

	if err := a.Jobs.Start(ctx, job.ID); err != nil {
		if errors.Is(err, apperrors.ErrPrecondition) {
			return Target{}, temporal.NewNonRetryableApplicationError(err.Error(), errTypeCanceled, err)
		}
		return Target{}, err
	}
	return target, nil
}

// Stage runs one stage. A failed stage is returned as an error so Temporal
// retries it; skipped stages succeed.
func (a *Activities) Stage(ctx context.Context, in StageInput) (services.StageOutcome, error) {
	orgID, uploadID, err := in.ids()
	if err != nil {
		return services.StageOutcome{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidPayload", err)
	}
	activity.RecordHeartbeat(ctx, in.Stage)
	out := a.Pipeline.ExecuteStage(ctx, in.Stage, orgID, uploadID)
	if out.Status == services.StageStatusError {
		info := activity.GetInfo(ctx)
		a.Log.Warn("pipeline stage failed",
			"upload_id", uploadID,
			"stage", in.Stage,
			"attempt", info.Attempt,
			"error", out.Error,
		)
		return out, temporal.NewApplicationError(out.Error, errTypeStage)
	}
	return out, nil
}

// Finalize settles the upload status and closes the job_run with the result.
func (a *Activities) Finalize(ctx context.Context, in FinalizeInput) (*services.PipelineResult, error) {
	orgID, uploadID, err := in.ids()
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidPayload", err)
	}
	jobID, err := uuid.Parse(in.JobID)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid job_id", "InvalidJobID", err)
	}
	res, runErr := a.Pipeline.Finalize(ctx, orgID, uploadID, in.Outcomes)
	if err := a.Jobs.Complete(ctx, jobID, "done", res, runErr); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	return res, nil
}

func (t Target) ids() (uuid.UUID, uuid.UUID, error) {
	orgID, err := uuid.Parse(t.OrgID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid org_id %q", t.OrgID)
	}
	uploadID, err := uuid.Parse(t.UploadID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid upload_id %q", t.UploadID)
	}
	return orgID, uploadID, nil
}
