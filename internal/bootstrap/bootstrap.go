// Package bootstrap provides dependency initialization for the coach API.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/coachkit/coach-api/internal/config"
	"github.com/coachkit/coach-api/internal/imentiv"
	"github.com/coachkit/coach-api/internal/pipeline"
	"github.com/coachkit/coach-api/internal/session"
	"github.com/coachkit/coach-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Repo  session.Repository
	Store storage.Storage
	Queue *pipeline.Queue
}

// Close releases the queue workers and the repository connection. The queue
// is drained first so in-flight runs can still write their results.
func (d *Dependencies) Close() error {
	d.Queue.Close()
	return d.Repo.Close()
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// The handler-facing repository. Each analysis run opens its own
	// connection via the factory below instead of sharing this one.
	repo, err := session.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := imentiv.NewClient(
		imentiv.WithAPIKey(cfg.ImentivAPIKey),
		imentiv.WithBaseURL(cfg.ImentivBaseURL),
		imentiv.WithPollInterval(cfg.PollInterval()),
		imentiv.WithMaxWait(cfg.PollMaxWait()),
		imentiv.WithFrameWaitAttempts(cfg.FrameWaitAttempts),
		imentiv.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create imentiv client: %w", err)
	}

	repoFactory := func() (session.Repository, error) {
		return session.OpenSQLite(cfg.DatabasePath)
	}

	runner, err := pipeline.NewRunner(repoFactory, store, client, cfg.ScratchDir, logger)
	if err != nil {
		return nil, fmt.Errorf("create pipeline runner: %w", err)
	}

	queue := pipeline.NewQueue(runner, cfg.WorkerCount, 2*cfg.WorkerCount, logger)

	return &Dependencies{
		Repo:  repo,
		Store: store,
		Queue: queue,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	mediaDir := cfg.LocalMediaDir
	if mediaDir == "" {
		mediaDir = "media"
	}
	localStore, err := storage.NewLocalStorage(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("media_dir", mediaDir),
	)
	return localStore, nil
}
