package app

import (
	"gorm.io/gorm"

	"github.com/aetherhq/aether-backend/internal/http"
	httpH "github.com/aetherhq/aether-backend/internal/http/handlers"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Upload *httpH.UploadHandler
	KPI    *httpH.KPIHandler
	Gap    *httpH.GapHandler
	Job    *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health: httpH.NewHealthHandler(db),
		Upload: httpH.NewUploadHandler(services.Uploads, services.Ontology, services.Jobs),
		KPI:    httpH.NewKPIHandler(services.KPI),
		Gap:    httpH.NewGapHandler(services.Gaps),
		Job:    httpH.NewJobHandler(services.Jobs),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:           log,
		Metrics:       metrics,
		CORSOrigins:   cfg.CORSOrigins,
		HealthHandler: handlers.Health,
		UploadHandler: handlers.Upload,
		KPIHandler:    handlers.KPI,
		GapHandler:    handlers.Gap,
		JobHandler:    handlers.Job,
	})
}
