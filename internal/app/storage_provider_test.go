package app

import (
	"context"
	"errors"
	"testing"

	"github.com/aetherhq/aether-backend/internal/data/repos/testutil"
	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/platform/gcp"
)

func TestResolveArchiveDisabledWithoutBucket(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	archive, err := resolveArchive(t.Context(), testutil.Logger(t), "")
	if err != nil || archive != nil {
		t.Fatalf("resolveArchive = %v, %v", archive, err)
	}
}

func TestResolveArchiveClassifiesConfigErrors(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		emulator string
		want     ArchiveBootstrapErrorCode
	}{
		{"bad mode", "s3", "", ArchiveBootstrapErrorInvalidMode},
		{"bad emulator host", "gcs_emulator", "fake-gcs:4443", ArchiveBootstrapErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("OBJECT_STORAGE_MODE", tc.mode)
			t.Setenv("STORAGE_EMULATOR_HOST", tc.emulator)
			_, err := resolveArchive(t.Context(), testutil.Logger(t), "raw-uploads")
			var got *ArchiveBootstrapError
			if !errors.As(err, &got) || got.Code != tc.want {
				t.Fatalf("err = %v want code %s", err, tc.want)
			}
		})
	}
}

func TestResolveArchiveClassifiesConnectFailure(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	orig := newArchive
	t.Cleanup(func() { newArchive = orig })
	newArchive = func(ctx context.Context, log *logger.Logger, cfg gcp.ArchiveConfig) (gcp.Archive, error) {
		if cfg.Bucket != "raw-uploads" {
			t.Fatalf("bucket = %q", cfg.Bucket)
		}
		return nil, errors.New("credentials not found")
	}
	_, err := resolveArchive(t.Context(), testutil.Logger(t), "raw-uploads")
	var got *ArchiveBootstrapError
	if !errors.As(err, &got) || got.Code != ArchiveBootstrapErrorConnectFailed {
		t.Fatalf("err = %v", err)
	}
}
