package session

import (
	"context"
	"sort"
	"sync"

	"github.com/coachkit/coach-api/internal/analysis"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses maps with an RWMutex for thread-safe access.
// Suitable for development and testing; production uses SQLite.
type MemoryRepository struct {
	mu       sync.RWMutex
	nextID   int64
	sessions map[int64]*Session
	results  map[int64]analysis.Result
}

// NewMemoryRepository creates a new in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID:   1,
		sessions: make(map[int64]*Session),
		results:  make(map[int64]analysis.Result),
	}
}

// Create persists a session, assigning the next sequential ID.
func (r *MemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.nextID
	r.nextID++
	clone := *s
	r.sessions[s.ID] = &clone
	return nil
}

// FindByID retrieves a session by ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s
	return &clone, nil
}

// List returns all sessions, newest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		clone := *s
		result = append(result, &clone)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// SetStatus updates a session's status. Missing sessions are a no-op.
func (r *MemoryRepository) SetStatus(_ context.Context, id int64, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	s.Status = status
	return nil
}

// UpsertResult stores the result for a session, replacing any existing one.
func (r *MemoryRepository) UpsertResult(_ context.Context, id int64, result analysis.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[id] = result
	return nil
}

// FindResult retrieves the stored result for a session.
func (r *MemoryRepository) FindResult(_ context.Context, id int64) (*analysis.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result, ok := r.results[id]
	if !ok {
		return nil, ErrNoResult
	}
	return &result, nil
}

// Close is a no-op for the in-memory repository.
func (r *MemoryRepository) Close() error {
	return nil
}
