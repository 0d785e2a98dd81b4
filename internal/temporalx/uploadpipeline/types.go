package uploadpipeline

import (
	"github.com/aetherhq/aether-backend/internal/services"
)

const (
	// WorkflowName matches the job_type so JobService can start the workflow
	// by name without importing this package.
	WorkflowName     = services.PipelineJobType
	ActivityStart    = "upload_pipeline_start"
	ActivityStage    = "upload_pipeline_stage"
	ActivityFinalize = "upload_pipeline_finalize"

	errTypeCanceled = "JobCanceled"
	errTypeStage    = "StageFailed"
)

type Target struct {
	JobID    string `json:"job_id"`
	OrgID    string `json:"org_id"`
	UploadID string `json:"upload_id"`
}

type StageInput struct {
	Target
	Stage string `json:"stage"`
}

type FinalizeInput struct {
	Target
	Outcomes []services.StageOutcome `json:"outcomes"`
}
