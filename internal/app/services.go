package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/repos"
	"github.com/aetherhq/aether-backend/internal/ingestion/catalog"
	"github.com/aetherhq/aether-backend/internal/ingestion/extractor"
	"github.com/aetherhq/aether-backend/internal/jobs/pipeline/upload_pipeline"
	jobrt "github.com/aetherhq/aether-backend/internal/jobs/runtime"
	"github.com/aetherhq/aether-backend/internal/jobs/schedule"
	"github.com/aetherhq/aether-backend/internal/jobs/worker"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
	"github.com/aetherhq/aether-backend/internal/temporalx/temporalworker"
)

type Services struct {
	Aggregation services.AggregationService
	KPI         services.KPIService
	Gaps        services.GapService
	Ontology    services.OntologyService
	Jobs        services.JobService
	Pipeline    services.PipelineService
	Uploads     services.UploadService
	Backfill    services.BackfillService

	// Background runners; nil when the configured mode does not use them.
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
	Scheduler      *schedule.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r repos.Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	cat := catalog.Current(log)

	var s Services
	s.Aggregation = services.NewAggregationService(db, log, r, extractor.New(cat), clients.Cache, metrics)
	s.KPI = services.NewKPIService(db, log, r, clients.Cache, cfg.KPICacheTTL, metrics)
	s.Gaps = services.NewGapService(db, log, r, metrics)
	s.Ontology = services.NewOntologyService(db, log, r, services.NewHeuristicDetector(cat))

	notify := services.NewJobNotifier(log, metrics)
	s.Jobs = services.NewJobService(db, log, r.JobRuns, notify, cfg.PipelineMode, clients.Temporal, clients.TemporalCfg.TaskQueue)
	s.Pipeline = services.NewPipelineService(db, log, r, s.Aggregation, s.Gaps, s.Ontology, s.Jobs, metrics)
	s.Uploads = services.NewUploadService(db, log, r, s.Aggregation, s.Pipeline, clients.Archive, cat, services.UploadConfig{
		MaxBytes:  cfg.MaxUploadBytes,
		BatchSize: cfg.RowInsertBatchSize,
	}, metrics)
	s.Backfill = services.NewBackfillService(db, log, r, s.Aggregation, s.Gaps, s.Jobs)

	if cfg.RunWorker {
		switch cfg.PipelineMode {
		case services.DispatchWorker:
			registry := jobrt.NewRegistry()
			if err := registry.Register(upload_pipeline.New(log, s.Pipeline)); err != nil {
				return Services{}, fmt.Errorf("register job handlers: %w", err)
			}
			s.JobWorker = worker.NewWorker(db, log, r.JobRuns, registry, notify, worker.Config{
				Concurrency: cfg.WorkerConcurrency,
			})
		case services.DispatchTemporal:
			runner, err := temporalworker.NewRunner(log, clients.Temporal, clients.TemporalCfg, cfg.WorkerConcurrency, s.Pipeline, s.Jobs)
			if err != nil {
				return Services{}, fmt.Errorf("init temporal worker: %w", err)
			}
			s.TemporalWorker = runner
		}
		s.Scheduler = schedule.New(log, s.Backfill)
	}
	return s, nil
}
