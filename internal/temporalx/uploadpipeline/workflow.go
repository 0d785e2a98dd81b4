package uploadpipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aetherhq/aether-backend/internal/services"
)

const stageAttempts = 3

/*
Workflow runs one upload through the post-ingest stages.

  - start: load the job_run, resolve org/upload, mark it running
  - stages: every stage runs as its own activity, concurrently; a stage that
    still fails after its retries becomes an error outcome instead of failing
    the workflow
  - finalize: derive the upload status from the outcomes and close the job_run

The workflow id is the job_run id.
*/
func Workflow(ctx workflow.Context, jobID string) (*services.PipelineResult, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}

	startCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			MaximumAttempts:        stageAttempts,
			NonRetryableErrorTypes: []string{errTypeCanceled},
		},
	})
	var target Target
	if err := workflow.ExecuteActivity(startCtx, ActivityStart, jobID).Get(ctx, &target); err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == errTypeCanceled {
			workflow.GetLogger(ctx).Info("job canceled before start", "job_id", jobID)
			return nil, nil
		}
		return nil, err
	}

	stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    stageAttempts,
		},
	})
	futures := make([]workflow.Future, len(services.PipelineStages))
	for i, stage := range services.PipelineStages {
		futures[i] = workflow.ExecuteActivity(stageCtx, ActivityStage, StageInput{Target: target, Stage: stage})
	}
	outcomes := make([]services.StageOutcome, len(futures))
	for i, f := range futures {
		var out services.StageOutcome
		if err := f.Get(ctx, &out); err != nil {
			out = services.StageOutcome{
				Stage:  services.PipelineStages[i],
				Status: services.StageStatusError,
				Error:  stageError(err),
			}
		}
		outcomes[i] = out
	}

	finalCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 5,
		},
	})
	var res services.PipelineResult
	if err := workflow.ExecuteActivity(finalCtx, ActivityFinalize, FinalizeInput{Target: target, Outcomes: outcomes}).Get(ctx, &res); err != nil {
		return nil, fmt.Errorf("finalize upload %s: %w", target.UploadID, err)
	}
	return &res, nil
}

// stageError unwraps the activity failure down to the stage's own message.
func stageError(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
