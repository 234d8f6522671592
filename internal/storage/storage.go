// Package storage defines the blob store used to archive captured frames.
// Implementations live in the memory, local and gcs subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject for a path that was never written.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore saves and loads archive objects by slash-separated path.
type BlobStore interface {
	// PutObject stores data under path and returns a URI naming it.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject returns the bytes last stored under path.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
