package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/platform/gcp"
)

var newArchive = gcp.NewArchive

type ArchiveBootstrapErrorCode string

const (
	ArchiveBootstrapErrorInvalidMode         ArchiveBootstrapErrorCode = "invalid_mode"
	ArchiveBootstrapErrorInvalidEmulatorHost ArchiveBootstrapErrorCode = "invalid_emulator_host"
	ArchiveBootstrapErrorConnectFailed       ArchiveBootstrapErrorCode = "connect_failed"
)

type ArchiveBootstrapError struct {
	Code         ArchiveBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *ArchiveBootstrapError) Error() string {
	return fmt.Sprintf("upload archive bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code, e.Mode, e.EmulatorHost, e.Cause)
}

func (e *ArchiveBootstrapError) Unwrap() error { return e.Cause }

// resolveArchive returns a nil Archive when no bucket is configured.
func resolveArchive(ctx context.Context, log *logger.Logger, bucket string) (gcp.Archive, error) {
	cfg, err := gcp.LoadArchiveConfig()
	cfg.Bucket = bucket
	if err != nil {
		if !cfg.Enabled() {
			log.Warn("ignoring object storage settings; no archive bucket configured", "error", err)
			return nil, nil
		}
		return nil, classifyArchiveError(cfg, err)
	}
	archive, err := newArchive(ctx, log, cfg)
	if err != nil {
		classified := classifyArchiveError(cfg, err)
		log.Error("Upload archive bootstrap failed",
			"mode", cfg.Mode,
			"bucket", cfg.Bucket,
			"emulator_host", cfg.EmulatorHost,
			"error", classified,
		)
		return nil, classified
	}
	return archive, nil
}

func classifyArchiveError(cfg gcp.ArchiveConfig, err error) error {
	code := ArchiveBootstrapErrorConnectFailed
	switch {
	case errors.Is(err, gcp.ErrInvalidStorageMode):
		code = ArchiveBootstrapErrorInvalidMode
	case errors.Is(err, gcp.ErrInvalidEmulatorHost):
		code = ArchiveBootstrapErrorInvalidEmulatorHost
	}
	return &ArchiveBootstrapError{
		Code:         code,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
}
