package upload_pipeline

import (
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/services"
)

type Pipeline struct {
	log      *logger.Logger
	pipeline services.PipelineService
}

func New(baseLog *logger.Logger, pipeline services.PipelineService) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", services.PipelineJobType),
		pipeline: pipeline,
	}
}

func (p *Pipeline) Type() string { return services.PipelineJobType }
