package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the queue cannot accept more work.
var ErrQueueFull = errors.New("pipeline: queue is full")

// ErrQueueClosed is returned when submitting to a closed queue.
var ErrQueueClosed = errors.New("pipeline: queue is closed")

// Queue runs analysis pipelines on a bounded pool of background workers.
// The trigger handler hands a session ID to Submit and returns immediately;
// the owning worker drives the run to a terminal status.
type Queue struct {
	runner *Runner
	tasks  chan int64
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue creates a Queue with the given number of workers and starts them.
// The buffer bounds how many sessions may wait for a worker.
func NewQueue(runner *Runner, workers, buffer int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}

	q := &Queue{
		runner: runner,
		tasks:  make(chan int64, buffer),
		logger: logger,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}

	return q
}

// Submit enqueues a session for background analysis without blocking.
// Returns ErrQueueFull when all workers are busy and the buffer is full.
func (q *Queue) Submit(sessionID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- sessionID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for in-flight runs to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
}

// worker drains the task channel. Runs use a background context: the HTTP
// request that triggered them is long gone by the time polling finishes.
func (q *Queue) worker() {
	defer q.wg.Done()

	for sessionID := range q.tasks {
		q.runOne(sessionID)
	}
}

// runOne executes a single run, containing panics so one broken run cannot
// take down the worker pool.
func (q *Queue) runOne(sessionID int64) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("panic in analysis run",
				slog.Int64("session_id", sessionID),
				slog.Any("panic", rec),
			)
		}
	}()

	if err := q.runner.Run(context.Background(), sessionID); err != nil {
		q.logger.Error("background run terminated with error",
			slog.Int64("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
}
