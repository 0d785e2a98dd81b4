package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/aetherhq/aether-backend/internal/clients/redis"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/platform/gcp"
	"github.com/aetherhq/aether-backend/internal/services"
	"github.com/aetherhq/aether-backend/internal/temporalx"
	"github.com/aetherhq/aether-backend/internal/utils"
)

type Clients struct {
	Cache       redis.Cache
	Archive     gcp.Archive
	Temporal    temporalsdkclient.Client
	TemporalCfg temporalx.Config
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	// Redis, or the in-process cache when REDIS_ADDR is unset
	if utils.GetEnv("REDIS_ADDR", "", log) != "" {
		cache, err := redis.NewCache(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis cache: %w", err)
		}
		c.Cache = cache
	} else {
		log.Warn("REDIS_ADDR not set; using in-memory KPI cache")
		c.Cache = redis.NewMemoryCache()
	}

	// Gcs
	archive, err := resolveArchive(ctx, log, cfg.UploadArchiveBucket)
	if err != nil {
		c.Close()
		return Clients{}, err
	}
	c.Archive = archive

	// Temporal
	c.TemporalCfg = temporalx.LoadConfig(log)
	if cfg.PipelineMode == services.DispatchTemporal {
		tc, err := temporalx.NewClient(ctx, log, c.TemporalCfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init temporal client: %w", err)
		}
		if tc == nil {
			c.Close()
			return Clients{}, fmt.Errorf("PIPELINE_MODE=temporal requires TEMPORAL_ADDRESS")
		}
		c.Temporal = tc
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Archive != nil {
		_ = c.Archive.Close()
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}
