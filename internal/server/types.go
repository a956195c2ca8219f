// Package server provides the HTTP server for the coach API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/coachkit/coach-api/internal/analysis"
)

// UploadRequest is the HTTP request body for registering an upload.
type UploadRequest struct {
	// FileType is the MIME type the browser will upload.
	FileType string `json:"file_type" validate:"omitempty,max=64"`
	// Question is the prompt the user will answer on camera.
	Question string `json:"question" validate:"omitempty,max=1024"`
}

// UploadResponse is the HTTP response after registering an upload.
type UploadResponse struct {
	// UploadURL is the presigned URL the browser PUTs the recording to.
	UploadURL string `json:"upload_url"`
	// VideoKey is the storage object key issued for the recording.
	VideoKey string `json:"video_key"`
	// SessionID is the identifier of the created session.
	SessionID int64 `json:"session_id"`
}

// TriggerResponse is the HTTP response after scheduling an analysis run.
type TriggerResponse struct {
	// Status is always "queued" on success.
	Status string `json:"status"`
	// SessionID is the identifier of the triggered session.
	SessionID int64 `json:"session_id"`
}

// ResultResponse is the HTTP response for the result polling endpoint.
type ResultResponse struct {
	// Status is the session's current lifecycle status.
	Status string `json:"status"`
	// Data is the analysis result, or null until the session completes.
	Data *analysis.Result `json:"data"`
}

// SessionResponse is one entry in the session listing.
type SessionResponse struct {
	ID        int64     `json:"id"`
	Question  string    `json:"question"`
	VideoKey  string    `json:"video_key"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
