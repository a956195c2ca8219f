package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage implements the Storage interface on local disk.
// Suitable for development and testing; production uses S3.
type LocalStorage struct {
	rootDir string
}

// NewLocalStorage creates a new LocalStorage rooted at rootDir.
// If rootDir is empty, a directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(rootDir string) (*LocalStorage, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "coach-media")
	}

	if err := os.MkdirAll(rootDir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{rootDir: rootDir}, nil
}

// RootDir returns the storage root directory.
func (s *LocalStorage) RootDir() string {
	return s.rootDir
}

// Put writes an object under the given key. Used by tests and dev tooling
// to seed media that production receives via presigned browser uploads.
func (s *LocalStorage) Put(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}
	return writeStream(path, data)
}

// DownloadToLocal copies the object with the given key into destPath.
func (s *LocalStorage) DownloadToLocal(ctx context.Context, key, destPath string) error {
	body, err := s.Open(ctx, key)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	return writeStream(destPath, body)
}

// Open returns a read stream for the object with the given key.
func (s *LocalStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path := filepath.Join(s.rootDir, filepath.FromSlash(key))
	f, err := os.Open(path) // #nosec G304 - key is issued by this service
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return f, nil
}

// PresignUpload returns a pseudo-URL pointing at the local object path.
// There is no upload authentication locally; the URL only tells a dev
// client where the object will be read from.
func (s *LocalStorage) PresignUpload(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "file://" + filepath.Join(s.rootDir, filepath.FromSlash(key)), nil
}
