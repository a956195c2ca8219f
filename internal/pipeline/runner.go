// Package pipeline provides the analysis orchestrator: it drives one
// session from recorded media to a terminal status against the external
// emotion analysis API.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/coachkit/coach-api/internal/analysis"
	"github.com/coachkit/coach-api/internal/imentiv"
	"github.com/coachkit/coach-api/internal/session"
	"github.com/coachkit/coach-api/internal/storage"
)

// RepositoryFactory opens a fresh repository connection. Each orchestration
// run owns its own connection: a run can outlive the HTTP request that
// triggered it by minutes and must never share the request's connection.
type RepositoryFactory func() (session.Repository, error)

// Runner executes the analysis pipeline for one session at a time.
type Runner struct {
	repos      RepositoryFactory
	store      storage.Storage
	client     imentiv.Client
	logger     *slog.Logger
	scratchDir string
}

// NewRunner creates a new pipeline Runner.
func NewRunner(repos RepositoryFactory, store storage.Storage, client imentiv.Client, scratchDir string, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if scratchDir == "" {
		scratchDir = filepath.Join(os.TempDir(), "coach")
	}
	if err := os.MkdirAll(scratchDir, 0750); err != nil {
		return nil, fmt.Errorf("create scratch directory: %w", err)
	}

	return &Runner{
		repos:      repos,
		store:      store,
		client:     client,
		logger:     logger,
		scratchDir: scratchDir,
	}, nil
}

// Run executes the full pipeline for a session: download the recording,
// submit it for analysis, await the result, normalize, persist.
//
// Any error after the run starts converges the session to failed so the
// caller never observes a session stuck in processing. The returned error is
// diagnostic only; the terminal status is already written by the time Run
// returns.
func (r *Runner) Run(ctx context.Context, sessionID int64) (err error) {
	repo, err := r.repos()
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer func() { _ = repo.Close() }()

	// A panic mid-run must still converge the session to failed; the repo
	// handle is in scope here, so recover before it closes.
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in analysis run",
				slog.Int64("session_id", sessionID),
				slog.Any("panic", rec),
			)
			r.markStatus(ctx, repo, sessionID, session.StatusFailed)
			err = fmt.Errorf("panic in analysis run for session %d: %v", sessionID, rec)
		}
	}()

	sess, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve session %d: %w", sessionID, err)
	}

	// Scratch path carries a per-run nonce so overlapping re-triggers of the
	// same session never share a file.
	scratch := filepath.Join(r.scratchDir,
		fmt.Sprintf("session-%d-%s.webm", sessionID, ulid.Make().String()))
	defer func() {
		if err := storage.RemoveScratch(scratch); err != nil {
			r.logger.Warn("scratch cleanup failed",
				slog.Int64("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}()

	if err := r.process(ctx, repo, sess, scratch); err != nil {
		r.logger.Error("analysis pipeline failed",
			slog.Int64("session_id", sessionID),
			slog.String("video_key", sess.VideoKey),
			slog.String("error", err.Error()),
		)
		r.markStatus(ctx, repo, sessionID, session.StatusFailed)
		return err
	}

	r.markStatus(ctx, repo, sessionID, session.StatusCompleted)
	r.logger.Info("analysis pipeline completed",
		slog.Int64("session_id", sessionID),
	)
	return nil
}

// process performs the fallible middle of the pipeline. Returning an error
// leaves the terminal-status write to Run.
func (r *Runner) process(ctx context.Context, repo session.Repository, sess *session.Session, scratch string) error {
	if err := r.store.DownloadToLocal(ctx, sess.VideoKey, scratch); err != nil {
		return fmt.Errorf("fetch media %s: %w", sess.VideoKey, err)
	}

	jobID, err := r.client.Submit(ctx, scratch)
	if err != nil {
		return fmt.Errorf("submit analysis job: %w", err)
	}
	r.logger.Info("analysis job submitted",
		slog.Int64("session_id", sess.ID),
		slog.String("job_id", jobID),
	)

	raw, err := r.client.AwaitResult(ctx, jobID)
	if err != nil {
		return fmt.Errorf("await job %s: %w", jobID, err)
	}

	result := analysis.Normalize(raw)

	if err := repo.UpsertResult(ctx, sess.ID, result); err != nil {
		return fmt.Errorf("persist result: %w", err)
	}
	return nil
}

// markStatus writes a lifecycle transition, treating an out-of-precondition
// move as a logged no-op: a retried trigger must not corrupt state. A failed
// write is logged, not retried; the session keeps its last written status.
func (r *Runner) markStatus(ctx context.Context, repo session.Repository, sessionID int64, to session.Status) {
	current, err := repo.FindByID(ctx, sessionID)
	if err != nil {
		r.logger.Error("status transition lookup failed",
			slog.Int64("session_id", sessionID),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
		return
	}

	if !session.CanTransition(current.Status, to) {
		r.logger.Warn("unexpected status transition skipped",
			slog.Int64("session_id", sessionID),
			slog.String("from", string(current.Status)),
			slog.String("to", string(to)),
		)
		return
	}

	if err := repo.SetStatus(ctx, sessionID, to); err != nil {
		r.logger.Error("status write failed",
			slog.Int64("session_id", sessionID),
			slog.String("to", string(to)),
			slog.String("error", err.Error()),
		)
	}
}
