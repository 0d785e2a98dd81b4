package gcp

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestArchiveKey(t *testing.T) {
	org := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	up := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"plain", "sales.xlsx", "uploads/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/sales.xlsx"},
		{"strips directories", `C:\exports\week 1.csv`, "uploads/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/week 1.csv"},
		{"empty", "  ", "uploads/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222/upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArchiveKey(org, up, tt.filename); got != tt.want {
				t.Fatalf("ArchiveKey: want=%q got=%q", tt.want, got)
			}
		})
	}
}

func TestLoadArchiveConfigDefaultGCS(t *testing.T) {
	t.Setenv("UPLOAD_ARCHIVE_BUCKET", "aether-uploads")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")

	cfg, err := LoadArchiveConfig()
	if err != nil {
		t.Fatalf("LoadArchiveConfig: %v", err)
	}
	if cfg.Mode != StorageModeGCS || !cfg.Enabled() {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadArchiveConfigEmulatorFallback(t *testing.T) {
	t.Setenv("UPLOAD_ARCHIVE_BUCKET", "aether-uploads")
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443/")

	cfg, err := LoadArchiveConfig()
	if err != nil {
		t.Fatalf("LoadArchiveConfig: %v", err)
	}
	if !cfg.IsEmulator() {
		t.Fatalf("mode: want=%q got=%q", StorageModeGCSEmulator, cfg.Mode)
	}
	if cfg.EmulatorHost != "http://fake-gcs:4443" {
		t.Fatalf("emulator host not trimmed: %q", cfg.EmulatorHost)
	}
}

func TestLoadArchiveConfigErrors(t *testing.T) {
	t.Setenv("UPLOAD_ARCHIVE_BUCKET", "")

	t.Setenv("OBJECT_STORAGE_MODE", "local")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	if _, err := LoadArchiveConfig(); !errors.Is(err, ErrInvalidStorageMode) {
		t.Fatalf("invalid mode: got %v", err)
	}

	t.Setenv("OBJECT_STORAGE_MODE", "gcs_emulator")
	t.Setenv("STORAGE_EMULATOR_HOST", "fake-gcs:4443")
	if _, err := LoadArchiveConfig(); !errors.Is(err, ErrInvalidEmulatorHost) {
		t.Fatalf("invalid emulator host: got %v", err)
	}
}

func TestNewArchiveDisabled(t *testing.T) {
	a, err := NewArchive(t.Context(), nil, ArchiveConfig{Mode: StorageModeGCS})
	if err != nil || a != nil {
		t.Fatalf("disabled archive: got %v, %v", a, err)
	}
}
