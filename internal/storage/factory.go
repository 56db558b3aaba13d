package storage

import (
	"context"
	"fmt"

	"github.com/dictumlegal/dictum/internal/common"
)

// Backend type constants.
const (
	BackendFile = "file"
	BackendGCS  = "gcs"
)

// NewBlobStore creates a blob store based on the configuration.
// Supported backends: "file" (default) and "gcs".
func NewBlobStore(ctx context.Context, logger *common.Logger, config *common.BlobConfig) (BlobStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendFile
	}

	switch backend {
	case BackendFile:
		return NewFileBlobStore(logger, &config.File)

	case BackendGCS:
		return NewGCSBlobStore(ctx, logger, &config.GCS)

	default:
		return nil, fmt.Errorf("unknown blob backend: %s (supported: file, gcs)", backend)
	}
}
