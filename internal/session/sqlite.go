package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coachkit/coach-api/internal/analysis"
)

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	prompt     TEXT NOT NULL DEFAULT '',
	video_key  TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'created',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS analysis_results (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       INTEGER NOT NULL UNIQUE REFERENCES sessions(id),
	confidence_score REAL NOT NULL DEFAULT 0,
	clarity_score    REAL NOT NULL DEFAULT 0,
	resilience_score REAL NOT NULL DEFAULT 0,
	engagement_score REAL NOT NULL DEFAULT 0,
	summary          TEXT NOT NULL DEFAULT '',
	metrics_json     TEXT NOT NULL DEFAULT '{}'
);
`

// SQLiteRepository is a SQLite-backed implementation of Repository.
type SQLiteRepository struct {
	db *sql.DB
}

// OpenSQLite opens (and if necessary initializes) a SQLite-backed repository
// at the given path. WAL mode is enabled for concurrent orchestration runs.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Create persists a new session and assigns its ID.
func (r *SQLiteRepository) Create(ctx context.Context, s *Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	if s.Status == "" {
		s.Status = StatusCreated
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (prompt, video_key, status, created_at) VALUES (?, ?, ?, ?)`,
		s.Prompt, s.VideoKey, string(s.Status), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// FindByID retrieves a session by its identifier.
func (r *SQLiteRepository) FindByID(ctx context.Context, id int64) (*Session, error) {
	s := &Session{}
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, prompt, video_key, status, created_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.Prompt, &s.VideoKey, &status, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	s.Status = Status(status)
	return s, nil
}

// List returns all sessions, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, prompt, video_key, status, created_at FROM sessions ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*Session
	for rows.Next() {
		s := &Session{}
		var status string
		if err := rows.Scan(&s.ID, &s.Prompt, &s.VideoKey, &status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.Status = Status(status)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// SetStatus updates a session's status as a single-row write.
// A missing session is a no-op.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// UpsertResult stores the analysis result for a session.
// The UNIQUE constraint on session_id plus ON CONFLICT guarantees at most
// one result row per session even under overlapping runs.
func (r *SQLiteRepository) UpsertResult(ctx context.Context, id int64, result analysis.Result) error {
	metricsJSON, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analysis_results
			(session_id, confidence_score, clarity_score, resilience_score, engagement_score, summary, metrics_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			confidence_score = excluded.confidence_score,
			clarity_score    = excluded.clarity_score,
			resilience_score = excluded.resilience_score,
			engagement_score = excluded.engagement_score,
			summary          = excluded.summary,
			metrics_json     = excluded.metrics_json`,
		id, result.Confidence, result.Clarity, result.Resilience, result.Engagement,
		result.Summary, string(metricsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	return nil
}

// FindResult retrieves the stored analysis result for a session.
func (r *SQLiteRepository) FindResult(ctx context.Context, id int64) (*analysis.Result, error) {
	result := &analysis.Result{}
	var metricsJSON string
	err := r.db.QueryRowContext(ctx, `
		SELECT confidence_score, clarity_score, resilience_score, engagement_score, summary, metrics_json
		FROM analysis_results WHERE session_id = ?`, id,
	).Scan(&result.Confidence, &result.Clarity, &result.Resilience, &result.Engagement,
		&result.Summary, &metricsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("query result: %w", err)
	}

	if err := json.Unmarshal([]byte(metricsJSON), &result.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return result, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
