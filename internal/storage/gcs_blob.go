package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/dictumlegal/dictum/internal/common"
)

// GCSBlobStore implements BlobStore on Google Cloud Storage.
// All keys are placed under an optional bucket prefix so multiple
// deployments can share a bucket.
type GCSBlobStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
	logger *common.Logger
}

var _ BlobStore = (*GCSBlobStore)(nil)

// NewGCSBlobStore creates a blob store backed by a GCS bucket.
// Credentials come from the configured service account file, or from
// application default credentials when none is set.
func NewGCSBlobStore(ctx context.Context, logger *common.Logger, config *common.GCSBlobConfig) (*GCSBlobStore, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("gcs blob store bucket is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	gb := &GCSBlobStore{
		client: client,
		bucket: client.Bucket(config.Bucket),
		prefix: strings.Trim(config.Prefix, "/"),
		logger: logger,
	}

	logger.Debug().Str("bucket", config.Bucket).Str("prefix", gb.prefix).Msg("GCSBlobStore initialized")
	return gb, nil
}

func (gb *GCSBlobStore) objectName(key string) string {
	key = strings.TrimPrefix(key, "/")
	if gb.prefix == "" {
		return key
	}
	return gb.prefix + "/" + key
}

// Get retrieves a blob by key.
func (gb *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := gb.GetReader(ctx, key)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// GetReader returns a reader for streaming large blobs.
func (gb *GCSBlobStore) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := gb.bucket.Object(gb.objectName(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob %s: %w", key, err)
	}
	return r, nil
}

// Put stores a blob. Overwrites if exists.
func (gb *GCSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	return gb.PutReader(ctx, key, bytes.NewReader(data), int64(len(data)))
}

// PutReader stores a blob from a reader.
func (gb *GCSBlobStore) PutReader(ctx context.Context, key string, r io.Reader, size int64) error {
	w := gb.bucket.Object(gb.objectName(key)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize blob %s: %w", key, err)
	}
	return nil
}

// Delete removes a blob. No error if not found.
func (gb *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := gb.bucket.Object(gb.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Exists checks if a blob exists.
func (gb *GCSBlobStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := gb.bucket.Object(gb.objectName(key)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check blob %s: %w", key, err)
}

// List returns blobs whose keys start with the given prefix.
func (gb *GCSBlobStore) List(ctx context.Context, prefix string) ([]BlobInfo, error) {
	it := gb.bucket.Objects(ctx, &gcs.Query{Prefix: gb.objectName(prefix)})

	var blobs []BlobInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list blobs: %w", err)
		}

		key := attrs.Name
		if gb.prefix != "" {
			key = strings.TrimPrefix(key, gb.prefix+"/")
		}
		blobs = append(blobs, BlobInfo{
			Key:          key,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return blobs, nil
}

// Close releases the underlying client.
func (gb *GCSBlobStore) Close() error {
	return gb.client.Close()
}
