package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
)

// Archive stores the original bytes of uploaded spreadsheets.
type Archive interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// ArchiveKey is uploads/{org}/{upload}/{filename}.
func ArchiveKey(orgID, uploadID uuid.UUID, filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	return fmt.Sprintf("uploads/%s/%s/%s", orgID, uploadID, name)
}

// ContentType returns the MIME type recorded on archived spreadsheets.
func ContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xlsm":
		return "application/vnd.ms-excel.sheet.macroEnabled.12"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

type gcsArchive struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// NewArchive returns nil when no archive bucket is configured.
func NewArchive(ctx context.Context, log *logger.Logger, cfg ArchiveConfig) (Archive, error) {
	if !cfg.Enabled() {
		if log != nil {
			log.Info("UPLOAD_ARCHIVE_BUCKET not set; raw upload archive disabled")
		}
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate archive config: %w", err)
	}
	client, err := newStorageClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	serviceLog := log.With("service", "UploadArchive")
	serviceLog.Info("Upload archive initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return &gcsArchive{log: serviceLog, client: client, bucket: cfg.Bucket}, nil
}

func newStorageClient(ctx context.Context, cfg ArchiveConfig) (*storage.Client, error) {
	if cfg.IsEmulator() {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	}
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if creds := cfg.Credentials; strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else if creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return storage.NewClient(ctx, opts...)
}

func (a *gcsArchive) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := a.client.Bucket(a.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (a *gcsArchive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := a.client.Bucket(a.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %q: %w", key, err)
	}
	return rc, nil
}

func (a *gcsArchive) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := a.client.Bucket(a.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, a.bucket, err)
	}
	return nil
}

func (a *gcsArchive) Close() error {
	return a.client.Close()
}
