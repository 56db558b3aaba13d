// Package storage provides blob persistence for uploaded source documents
// and exported letters, with pluggable backends.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBlobNotFound is returned when a requested blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobInfo describes a stored blob.
type BlobInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobStore defines a provider-agnostic interface for blob storage.
// Keys use "/" separators and are scoped by firm, e.g.
// "uploads/{firm}/{document}" or "exports/{firm}/{letter}/{export}.docx".
type BlobStore interface {
	// Get retrieves a blob by key. Returns ErrBlobNotFound if not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetReader returns a reader for streaming large blobs.
	// Caller must close the reader when done.
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)

	// Put stores a blob. Overwrites if exists.
	Put(ctx context.Context, key string, data []byte) error

	// PutReader stores a blob from a reader for streaming large uploads.
	PutReader(ctx context.Context, key string, r io.Reader, size int64) error

	// Delete removes a blob. No error if not found.
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns blobs whose keys start with the given prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)

	// Close releases any resources held by the store.
	Close() error
}
