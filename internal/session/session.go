// Package session provides the Session aggregate for recorded coaching
// attempts. It includes the session lifecycle state machine and repository
// interfaces for persistence.
package session

import (
	"errors"
	"time"
)

// Status represents the current lifecycle state of a Session.
type Status string

const (
	// StatusCreated indicates the session row exists but no media has arrived.
	StatusCreated Status = "created"
	// StatusUploading indicates the browser is uploading media to storage.
	StatusUploading Status = "uploading"
	// StatusProcessing indicates an analysis run is in flight.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates analysis finished and a result is stored.
	StatusCompleted Status = "completed"
	// StatusFailed indicates analysis terminated without a usable result.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if no further automatic transition occurs.
// A retry is a brand-new orchestration run, not a resurrection.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when an undefined state transition is
// attempted.
var ErrInvalidTransition = errors.New("session: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusCreated:    {StatusUploading, StatusProcessing},
	StatusUploading:  {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from one status to another is defined.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session represents one user-recorded coaching attempt.
type Session struct {
	// ID is the unique identifier for this session.
	ID int64
	// Prompt is the question the user answered on camera.
	Prompt string
	// VideoKey is the storage object key of the recorded media.
	VideoKey string
	// Status is the current lifecycle state.
	Status Status
	// CreatedAt is when the session was registered.
	CreatedAt time.Time
}

// New creates a Session in the created state.
func New(prompt, videoKey string) *Session {
	return &Session{
		Prompt:    prompt,
		VideoKey:  videoKey,
		Status:    StatusCreated,
		CreatedAt: time.Now(),
	}
}
