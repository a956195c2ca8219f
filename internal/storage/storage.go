// Package storage provides the media storage boundary for recorded sessions.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for S3 and local disk.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrObjectNotFound is returned when the requested media object does not
// exist in storage.
var ErrObjectNotFound = errors.New("storage: object not found")

// DefaultPresignExpiry is how long an issued upload URL stays valid.
const DefaultPresignExpiry = 5 * time.Minute

// Storage defines the interface for the media object store.
// The orchestrator consumes downloads into scratch files; the HTTP layer
// consumes presigned upload URLs and read streams.
type Storage interface {
	// DownloadToLocal fetches the object with the given key into destPath.
	// Returns ErrObjectNotFound if the key does not exist.
	DownloadToLocal(ctx context.Context, key, destPath string) error

	// Open returns a read stream for the object with the given key.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// PresignUpload issues a URL the browser can PUT the recording to.
	PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (url string, err error)
}

// RemoveScratch deletes a scratch file, tolerating its absence.
func RemoveScratch(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove scratch file %s: %w", path, err)
	}
	return nil
}

// writeStream copies a read stream to destPath, cleaning up on failure.
func writeStream(destPath string, data io.Reader) error {
	f, err := os.Create(destPath) // #nosec G304 - path is a scratch file owned by the orchestrator
	if err != nil {
		return fmt.Errorf("create local file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(destPath)
		return fmt.Errorf("write local file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("close local file: %w", err)
	}
	return nil
}
