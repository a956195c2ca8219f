package session

import (
	"context"
	"testing"

	"github.com/coachkit/coach-api/internal/analysis"
)

func TestMemoryRepository_CreateAndFind(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := New("prompt", "uploads/key.webm")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID == 0 {
		t.Fatal("expected ID to be assigned")
	}

	found, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found.Prompt != "prompt" || found.VideoKey != "uploads/key.webm" {
		t.Errorf("unexpected session %+v", found)
	}

	// Mutating the returned session must not affect the stored copy.
	found.Status = StatusFailed
	again, err := repo.FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Status != StatusCreated {
		t.Errorf("stored session mutated externally: %s", again.Status)
	}
}

func TestMemoryRepository_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.FindByID(context.Background(), 999)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepository_List_NewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, New("q", "k")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	sessions, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != 3 || sessions[2].ID != 1 {
		t.Errorf("expected newest first, got IDs %d, %d, %d",
			sessions[0].ID, sessions[1].ID, sessions[2].ID)
	}
}

func TestMemoryRepository_SetStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := New("q", "k")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := repo.SetStatus(ctx, s.ID, StatusProcessing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found, _ := repo.FindByID(ctx, s.ID)
	if found.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", found.Status)
	}

	// Missing session is a no-op, not an error.
	if err := repo.SetStatus(ctx, 999, StatusFailed); err != nil {
		t.Errorf("expected no-op for missing session, got %v", err)
	}
}

func TestMemoryRepository_UpsertResult(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := New("q", "k")
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := repo.FindResult(ctx, s.ID); err != ErrNoResult {
		t.Errorf("expected ErrNoResult, got %v", err)
	}

	first := analysis.Result{Confidence: 10}
	if err := repo.UpsertResult(ctx, s.ID, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second upsert replaces, never duplicates.
	second := analysis.Result{Confidence: 99, Summary: "latest"}
	if err := repo.UpsertResult(ctx, s.ID, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := repo.FindResult(ctx, s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Confidence != 99 || stored.Summary != "latest" {
		t.Errorf("expected latest result, got %+v", stored)
	}
}
