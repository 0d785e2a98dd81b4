package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/aetherhq/aether-backend/internal/http/handlers"
	httpMW "github.com/aetherhq/aether-backend/internal/http/middleware"
	"github.com/aetherhq/aether-backend/internal/observability"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

const serviceName = "aether-api"

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string

	UploadHandler *httpH.UploadHandler
	KPIHandler    *httpH.KPIHandler
	GapHandler    *httpH.GapHandler
	JobHandler    *httpH.JobHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	org := api.Group("/orgs/:org_id")
	{
		// Uploads
		if cfg.UploadHandler != nil {
			org.POST("/uploads", cfg.UploadHandler.Create)
			org.GET("/uploads", cfg.UploadHandler.List)
			org.GET("/uploads/:id", cfg.UploadHandler.Get)
			org.PUT("/uploads/:id/mapping", cfg.UploadHandler.UpdateMapping)
			org.POST("/uploads/:id/reprocess", cfg.UploadHandler.Reprocess)
			org.DELETE("/uploads/:id", cfg.UploadHandler.Delete)
		}

		// KPIs
		if cfg.KPIHandler != nil {
			org.GET("/kpis", cfg.KPIHandler.Get)
		}

		// Performance gaps
		if cfg.GapHandler != nil {
			org.GET("/gaps", cfg.GapHandler.List)
		}
	}

	// Job
	if cfg.JobHandler != nil {
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
	}

	return r
}
