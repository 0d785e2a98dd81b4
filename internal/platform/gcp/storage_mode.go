package gcp

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

var (
	ErrInvalidStorageMode  = errors.New("invalid storage mode")
	ErrInvalidEmulatorHost = errors.New("invalid storage emulator host")
)

// ArchiveConfig selects the bucket and backend for raw upload archives.
type ArchiveConfig struct {
	Bucket       string
	Mode         StorageMode
	EmulatorHost string
	// Credentials is inline service-account JSON or a key file path; empty
	// uses application default credentials.
	Credentials string
}

func (cfg ArchiveConfig) Enabled() bool { return strings.TrimSpace(cfg.Bucket) != "" }

func (cfg ArchiveConfig) IsEmulator() bool { return cfg.Mode == StorageModeGCSEmulator }

// LoadArchiveConfig reads UPLOAD_ARCHIVE_BUCKET, OBJECT_STORAGE_MODE,
// STORAGE_EMULATOR_HOST and GOOGLE_APPLICATION_CREDENTIALS(_JSON). An emulator
// host with no explicit mode selects the emulator.
func LoadArchiveConfig() (ArchiveConfig, error) {
	cfg := ArchiveConfig{
		Bucket:       strings.TrimSpace(os.Getenv("UPLOAD_ARCHIVE_BUCKET")),
		EmulatorHost: strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/"),
		Credentials:  strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")),
	}
	if cfg.Credentials == "" {
		cfg.Credentials = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("OBJECT_STORAGE_MODE")))
	switch StorageMode(raw) {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = StorageMode(raw)
	default:
		return cfg, fmt.Errorf("%w: OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", ErrInvalidStorageMode, raw, StorageModeGCS, StorageModeGCSEmulator)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg ArchiveConfig) Validate() error {
	switch cfg.Mode {
	case StorageModeGCS:
		return nil
	case StorageModeGCSEmulator:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorageMode, cfg.Mode)
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if cfg.EmulatorHost == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", ErrInvalidEmulatorHost, cfg.EmulatorHost)
	}
	return nil
}
