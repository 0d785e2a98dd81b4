package app

import (
	"time"

	"github.com/aetherhq/aether-backend/internal/jobs/schedule"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
	"github.com/aetherhq/aether-backend/internal/utils"
)

type Config struct {
	Port        string
	LogMode     string
	Environment string
	CORSOrigins []string

	// RunServer and RunWorker let one binary serve the API, drain the job
	// queue, or both.
	RunServer         bool
	RunWorker         bool
	WorkerConcurrency int
	PipelineMode      string

	KPICacheTTL      time.Duration
	DateBackfillCron string

	UploadArchiveBucket string
	MaxUploadBytes      int64
	RowInsertBatchSize  int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:        utils.GetEnv("PORT", "8080", log),
		LogMode:     utils.GetEnv("LOG_MODE", "development", log),
		Environment: utils.GetEnv("APP_ENV", "development", log),
		CORSOrigins: utils.GetEnvAsList("CORS_ALLOWED_ORIGINS", nil, log),

		RunServer:         utils.GetEnvAsBool("RUN_SERVER", true, log),
		RunWorker:         utils.GetEnvAsBool("RUN_WORKER", true, log),
		WorkerConcurrency: utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, log),
		PipelineMode:      services.ParseDispatchMode(utils.GetEnv("PIPELINE_MODE", services.DispatchWorker, log)),

		KPICacheTTL:      utils.GetEnvAsDuration("KPI_CACHE_TTL", 5*time.Minute, log),
		DateBackfillCron: utils.GetEnv("DATE_BACKFILL_CRON", schedule.DefaultBackfillSpec, log),

		UploadArchiveBucket: utils.GetEnv("UPLOAD_ARCHIVE_BUCKET", "", log),
		MaxUploadBytes:      utils.GetEnvAsInt64("MAX_UPLOAD_BYTES", 25<<20, log),
		RowInsertBatchSize:  utils.GetEnvAsInt("ROW_INSERT_BATCH_SIZE", 500, log),
	}
}
