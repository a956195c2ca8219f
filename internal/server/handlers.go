package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/coachkit/coach-api/internal/pipeline"
	"github.com/coachkit/coach-api/internal/session"
	"github.com/coachkit/coach-api/internal/storage"
)

// Default values applied when the upload registration omits fields.
const (
	defaultFileType = "video/webm"
	defaultQuestion = "Tell me about yourself."
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	repo      session.Repository
	store     storage.Storage
	queue     *pipeline.Queue
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(repo session.Repository, store storage.Storage, queue *pipeline.Queue, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		repo:      repo,
		store:     store,
		queue:     queue,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateUpload handles POST /upload/presigned-url requests. It issues a
// storage key, creates the session row in created status, and returns a
// presigned URL for the browser to PUT the recording to.
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	if req.FileType == "" {
		req.FileType = defaultFileType
	}
	if req.Question == "" {
		req.Question = defaultQuestion
	}

	videoKey := "uploads/" + ulid.Make().String() + ".webm"

	sess := session.New(req.Question, videoKey)
	if err := h.repo.Create(r.Context(), sess); err != nil {
		h.logger.Error("failed to create session",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create session", "SESSION_CREATION_FAILED")
		return
	}

	uploadURL, err := h.store.PresignUpload(r.Context(), videoKey, req.FileType, storage.DefaultPresignExpiry)
	if err != nil {
		h.logger.Error("failed to presign upload",
			slog.Int64("session_id", sess.ID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "could not generate upload URL", "PRESIGN_FAILED")
		return
	}

	h.logger.Info("upload registered",
		slog.Int64("session_id", sess.ID),
		slog.String("video_key", videoKey),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		UploadURL: uploadURL,
		VideoKey:  videoKey,
		SessionID: sess.ID,
	})
}

// TriggerAnalysis handles POST /sessions/{id}/trigger requests. It records
// processing status and hands the session to the background queue without
// waiting for the run.
func (h *Handlers) TriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.repo.FindByID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get session",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get session", "SESSION_FETCH_FAILED")
		return
	}

	// A re-triggered session may already be processing or terminal; the
	// transition is skipped rather than corrupting the lifecycle, and the
	// new run converges the status itself.
	if session.CanTransition(sess.Status, session.StatusProcessing) {
		if err := h.repo.SetStatus(r.Context(), sessionID, session.StatusProcessing); err != nil {
			h.logger.Error("failed to set processing status",
				slog.Int64("session_id", sessionID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to update session", "STATUS_UPDATE_FAILED")
			return
		}
	} else {
		h.logger.Warn("trigger received outside expected state",
			slog.Int64("session_id", sessionID),
			slog.String("status", string(sess.Status)),
		)
	}

	if err := h.queue.Submit(sessionID); err != nil {
		h.logger.Error("failed to enqueue analysis run",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "analysis queue unavailable", "QUEUE_UNAVAILABLE")
		return
	}

	h.logger.Info("analysis queued",
		slog.Int64("session_id", sessionID),
	)

	writeJSON(w, http.StatusAccepted, TriggerResponse{
		Status:    "queued",
		SessionID: sessionID,
	})
}

// GetResult handles GET /sessions/{id}/result requests, the polling endpoint
// the frontend uses while analysis runs. Data is null until completion.
func (h *Handlers) GetResult(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.repo.FindByID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get session",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get session", "SESSION_FETCH_FAILED")
		return
	}

	resp := ResultResponse{Status: string(sess.Status)}

	result, err := h.repo.FindResult(r.Context(), sessionID)
	switch {
	case err == nil:
		resp.Data = result
	case errors.Is(err, session.ErrNoResult):
		// Still pending; data stays null.
	default:
		h.logger.Error("failed to get result",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get result", "RESULT_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSessions handles GET /sessions requests, newest first.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list sessions",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list sessions", "SESSION_LIST_FAILED")
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, SessionResponse{
			ID:        s.ID,
			Question:  s.Prompt,
			VideoKey:  s.VideoKey,
			Status:    string(s.Status),
			CreatedAt: s.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// StreamVideo handles GET /sessions/{id}/video requests by proxying the
// stored recording from the object store to the browser.
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	sess, err := h.repo.FindByID(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get session",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get session", "SESSION_FETCH_FAILED")
		return
	}

	body, err := h.store.Open(r.Context(), sess.VideoKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "video not found", "VIDEO_NOT_FOUND")
			return
		}
		h.logger.Error("failed to open video",
			slog.Int64("session_id", sessionID),
			slog.String("video_key", sess.VideoKey),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to stream video", "VIDEO_STREAM_FAILED")
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", defaultFileType)
	w.Header().Set("Content-Disposition", "inline")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("video stream interrupted",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}

// sessionID parses the {id} path value, writing a 400 on malformed input.
func (h *Handlers) sessionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid session ID", "INVALID_SESSION_ID")
		return 0, false
	}
	return id, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
