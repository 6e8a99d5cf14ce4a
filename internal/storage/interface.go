package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for artifact and asset storage.
type ObjectStorage interface {
	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object by key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the URL for accessing an object.
	GetURL(key string) string
}
