// Package storage defines the uniform capability surface every backend
// binding implements, plus the helpers they share: key layout, progress
// accounting and the TLS transport policy.
//
// Providers never retry; retry policy belongs to the caller. Not-found
// conditions wrap common.ErrNotFound.
package storage

import (
	"context"
	"io"
	"time"
)

// ProgressFunc receives transfer progress as a percentage (0..100).
type ProgressFunc func(percent int)

// Provider is one backend binding (S3, WebDAV) scoped to a single account.
type Provider interface {
	// TestConnection verifies reachability and credentials. WebDAV also
	// creates the account collection when it is missing.
	TestConnection(ctx context.Context) error

	// UploadFile streams r to <prefix><name> and returns the object
	// reference. length may be -1 when unknown.
	UploadFile(ctx context.Context, r io.Reader, name, contentType string, length int64, onProgress ProgressFunc) (string, error)

	// UploadText stores a small text/JSON payload.
	UploadText(ctx context.Context, text, name string) (string, error)

	// DownloadFile writes the object to dest. Cancelling ctx aborts the
	// copy at the next chunk.
	DownloadFile(ctx context.Context, name, dest string, onProgress ProgressFunc) error

	// FileSize returns the object size, or -1 when it is missing or unknown.
	FileSize(ctx context.Context, name string) (int64, error)

	// LastModified returns the object's modification time.
	LastModified(ctx context.Context, name string) (time.Time, error)

	// DeleteFile removes the object. Deleting a missing object is not an error.
	DeleteFile(ctx context.Context, name string) error

	// FullURL is the public URL of the object; it does no I/O.
	FullURL(name string) string
}
