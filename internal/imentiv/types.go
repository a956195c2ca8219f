// Package imentiv provides an HTTP client for the Imentiv emotion analysis
// API. Video analysis is asynchronous: a submitted job must be tracked to a
// terminal status before its per-frame emotion data can be read.
package imentiv

import "strings"

// JobState is the normalized status of an external analysis job.
// The API reports several synonyms per state; everything unrecognized is
// treated as still pending.
type JobState string

const (
	// StatePending means the job is queued, running, or not yet visible.
	StatePending JobState = "PENDING"
	// StateSucceeded means the job finished and its payload is readable.
	StateSucceeded JobState = "SUCCEEDED"
	// StateFailed means the API explicitly reported failure.
	StateFailed JobState = "FAILED"
)

// normalizeStatus maps a raw status string to a JobState.
func normalizeStatus(raw string) JobState {
	switch strings.ToUpper(raw) {
	case "SUCCESS", "COMPLETED":
		return StateSucceeded
	case "FAILED", "ERROR":
		return StateFailed
	default:
		return StatePending
	}
}

// PollOutcome is the tagged result of a single poll attempt. Exactly one of
// the non-pending states carries an Entry.
type PollOutcome struct {
	// State is the normalized job state for this attempt.
	State JobState
	// Entry is the raw listing entry for the job. Set when State is
	// StateSucceeded or StateFailed; nil while pending or absent.
	Entry map[string]any
}

// submitResponse is the response from the video upload endpoint.
type submitResponse struct {
	ID string `json:"id"`
}
