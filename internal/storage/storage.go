// Package storage holds the raw bytes of uploaded documents behind a
// put/get-by-key contract.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// ErrExists is returned by Put when the key is already taken.
var ErrExists = errors.New("storage: object already exists")

// System stores opaque byte blobs under opaque keys.
type System interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// New builds the backend selected in configuration.
func New(ctx context.Context, cfg config.StorageConfig) (System, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "filesystem":
		return NewFilesystem(cfg.Dir)
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("storage: GCS_BUCKET is required for the gcs backend")
		}
		return NewGCS(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
