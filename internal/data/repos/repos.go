package repos

import (
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/data/repos/ingest"
	"github.com/aetherhq/aether-backend/internal/data/repos/jobs"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type UploadRepo = ingest.UploadRepo
type DataRowRepo = ingest.DataRowRepo
type KPISnapshotRepo = ingest.KPISnapshotRepo
type PerformanceGapRepo = ingest.PerformanceGapRepo
type UploadOntologyRepo = ingest.UploadOntologyRepo

type JobRunRepo = jobs.JobRunRepo

// Repos is the full set of repositories the services are wired with.
type Repos struct {
	Uploads        UploadRepo
	DataRows       DataRowRepo
	Snapshots      KPISnapshotRepo
	Gaps           PerformanceGapRepo
	UploadOntology UploadOntologyRepo
	JobRuns        JobRunRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Uploads:        ingest.NewUploadRepo(db, log),
		DataRows:       ingest.NewDataRowRepo(db, log),
		Snapshots:      ingest.NewKPISnapshotRepo(db, log),
		Gaps:           ingest.NewPerformanceGapRepo(db, log),
		UploadOntology: ingest.NewUploadOntologyRepo(db, log),
		JobRuns:        jobs.NewJobRunRepo(db, log),
	}
}
