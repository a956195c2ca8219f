package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLocalStorage_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "media")

	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.RootDir() != dir {
		t.Errorf("expected root %q, got %q", dir, store.RootDir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("expected directory to exist: %v", err)
	}
}

func TestLocalStorage_PutOpenDownload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "uploads/clip.webm", strings.NewReader("video bytes")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body, err := store.Open(ctx, "uploads/clip.webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "video bytes" {
		t.Errorf("unexpected content %q", data)
	}

	dest := filepath.Join(t.TempDir(), "scratch.webm")
	if err := store.DownloadToLocal(ctx, "uploads/clip.webm", dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "video bytes" {
		t.Errorf("unexpected downloaded content %q", got)
	}
}

func TestLocalStorage_Open_NotFound(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = store.Open(context.Background(), "uploads/missing.webm")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}

	err = store.DownloadToLocal(context.Background(), "uploads/missing.webm", filepath.Join(t.TempDir(), "x"))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestLocalStorage_PresignUpload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	url, err := store.PresignUpload(context.Background(), "uploads/clip.webm", "video/webm", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Errorf("expected file:// pseudo-URL, got %q", url)
	}
	if !strings.Contains(url, "clip.webm") {
		t.Errorf("expected key in URL, got %q", url)
	}
}

func TestRemoveScratch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scratch.webm")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := RemoveScratch(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected file to be removed")
	}

	// Removing a missing file is not an error.
	if err := RemoveScratch(path); err != nil {
		t.Errorf("expected no error for missing file, got %v", err)
	}
}
