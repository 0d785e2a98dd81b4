package services

import (
	types "github.com/aetherhq/aether-backend/internal/domain"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// JobNotifier receives job_run lifecycle transitions.
type JobNotifier interface {
	JobCreated(job *types.JobRun)
	JobFailed(job *types.JobRun, stage string, errorMessage string)
	JobDone(job *types.JobRun)
}

type jobNotifier struct {
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewJobNotifier logs transitions and counts them in the job metrics.
func NewJobNotifier(baseLog *logger.Logger, metrics *observability.Metrics) JobNotifier {
	return &jobNotifier{log: baseLog.With("component", "JobNotifier"), metrics: metrics}
}

func (n *jobNotifier) JobCreated(job *types.JobRun) {
	if job == nil {
		return
	}
	n.metrics.IncJobRun(job.JobType, "created")
	n.log.Debug("Job created", "job_id", job.ID, "job_type", job.JobType, "org_id", job.OrgID)
}

func (n *jobNotifier) JobFailed(job *types.JobRun, stage string, errorMessage string) {
	if job == nil {
		return
	}
	n.metrics.IncJobRun(job.JobType, "failed")
	n.log.Warn("Job failed",
		"job_id", job.ID,
		"job_type", job.JobType,
		"org_id", job.OrgID,
		"stage", stage,
		"error", errorMessage,
	)
}

func (n *jobNotifier) JobDone(job *types.JobRun) {
	if job == nil {
		return
	}
	n.metrics.IncJobRun(job.JobType, "succeeded")
	n.log.Debug("Job succeeded", "job_id", job.ID, "job_type", job.JobType, "org_id", job.OrgID)
}
