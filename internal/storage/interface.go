package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download for a missing key.
var ErrNotFound = errors.New("object not found")

// ObjectStorage is the blob store behind the payload cache.
type ObjectStorage interface {
	// Upload writes an object, replacing any existing one.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens an object. Missing keys return ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns where an object lives, for logs and operators.
	GetURL(key string) string
}
