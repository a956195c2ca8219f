package session

import (
	"context"
	"errors"

	"github.com/coachkit/coach-api/internal/analysis"
)

// ErrNotFound is returned when a session cannot be found by ID.
var ErrNotFound = errors.New("session not found")

// ErrNoResult is returned when a session has no stored analysis result.
var ErrNoResult = errors.New("session has no analysis result")

// Repository defines the interface for session and result persistence.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Create persists a new session and assigns its ID.
	Create(ctx context.Context, s *Session) error

	// FindByID retrieves a session by its identifier.
	// Returns ErrNotFound if the session does not exist.
	FindByID(ctx context.Context, id int64) (*Session, error)

	// List returns all sessions, newest first.
	List(ctx context.Context) ([]*Session, error)

	// SetStatus updates a session's lifecycle status as a single-row write.
	// A missing session is a no-op, not an error, so a status writer racing
	// a deletion does not fail the whole run.
	SetStatus(ctx context.Context, id int64, status Status) error

	// UpsertResult stores the analysis result for a session, replacing any
	// existing result. At most one result row exists per session.
	UpsertResult(ctx context.Context, id int64, result analysis.Result) error

	// FindResult retrieves the stored analysis result for a session.
	// Returns ErrNoResult if none is stored.
	FindResult(ctx context.Context, id int64) (*analysis.Result, error)

	// Close releases the repository's underlying connection.
	Close() error
}
