package storage

import (
	"context"
	"fmt"
	"io"

	"go-lead-import/internal/config"
)

// ObjectStorage holds the uploaded source files and generated error reports.
// The engine only reads and writes byte streams by path.
type ObjectStorage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// NewObjectStorage selects the backend from config.
func NewObjectStorage(cfg *config.Config) (ObjectStorage, error) {
	switch cfg.StorageBackend {
	case "s3":
		return NewS3Storage(cfg)
	case "local", "":
		return NewLocalStorage(cfg.FSPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
