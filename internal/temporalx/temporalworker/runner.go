package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
	"github.com/aetherhq/aether-backend/internal/temporalx"
	"github.com/aetherhq/aether-backend/internal/temporalx/uploadpipeline"
)

type Runner struct {
	log         *logger.Logger
	tc          temporalsdkclient.Client
	cfg         temporalx.Config
	concurrency int
	acts        *uploadpipeline.Activities
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	cfg temporalx.Config,
	concurrency int,
	pipeline services.PipelineService,
	jobs services.JobService,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if pipeline == nil || jobs == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		log:         log.With("component", "TemporalWorker"),
		tc:          tc,
		cfg:         cfg,
		concurrency: concurrency,
		acts: &uploadpipeline.Activities{
			Log:      log.With("component", "UploadPipelineActivities"),
			Pipeline: pipeline,
			Jobs:     jobs,
		},
	}, nil
}

// Start polls the task queue until ctx is canceled. A missing namespace is
// retried until cfg.MaxWait; with auto-register enabled it is created first.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)
	deadline := time.Now().Add(r.cfg.MaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		missingNS := errors.As(startErr, &nfe)
		if missingNS && r.cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, r.cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}
		if r.cfg.MaxWait <= 0 || time.Now().After(deadline) {
			if missingNS {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "attempt", attempt, "error", startErr)
		time.Sleep(r.cfg.Backoff * time.Duration(attempt))
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.concurrency,
	})
	Register(w, r.acts)
	return w
}

// Registrar is the subset of worker.Worker (and the test environment) that
// accepts workflow and activity registrations.
type Registrar interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func Register(reg Registrar, acts *uploadpipeline.Activities) {
	reg.RegisterWorkflowWithOptions(uploadpipeline.Workflow, workflow.RegisterOptions{Name: uploadpipeline.WorkflowName})
	reg.RegisterActivityWithOptions(acts.Start, activity.RegisterOptions{Name: uploadpipeline.ActivityStart})
	reg.RegisterActivityWithOptions(acts.Stage, activity.RegisterOptions{Name: uploadpipeline.ActivityStage})
	reg.RegisterActivityWithOptions(acts.Finalize, activity.RegisterOptions{Name: uploadpipeline.ActivityFinalize})
}
