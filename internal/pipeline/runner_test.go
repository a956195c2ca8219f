package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/coach-api/internal/imentiv"
	"github.com/coachkit/coach-api/internal/session"
	"github.com/coachkit/coach-api/internal/storage"
)

// mockClient is a testify mock for the imentiv.Client interface.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) Submit(ctx context.Context, videoPath string) (string, error) {
	args := m.Called(ctx, videoPath)
	return args.String(0), args.Error(1)
}

func (m *mockClient) AwaitResult(ctx context.Context, jobID string) (map[string]any, error) {
	args := m.Called(ctx, jobID)
	payload, _ := args.Get(0).(map[string]any)
	return payload, args.Error(1)
}

// fixture wires a runner against an in-memory repository and local storage.
type fixture struct {
	repo       *session.MemoryRepository
	store      *storage.LocalStorage
	client     *mockClient
	runner     *Runner
	scratchDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := session.NewMemoryRepository()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	client := &mockClient{}
	scratchDir := t.TempDir()
	runner, err := NewRunner(
		func() (session.Repository, error) { return repo, nil },
		store, client, scratchDir, nil,
	)
	require.NoError(t, err)

	return &fixture{repo: repo, store: store, client: client, runner: runner, scratchDir: scratchDir}
}

// seedSession creates a processing session with media in storage, mirroring
// the state the trigger handler leaves behind.
func (f *fixture) seedSession(t *testing.T) *session.Session {
	t.Helper()
	ctx := context.Background()

	s := session.New("Tell me about yourself.", "uploads/clip.webm")
	require.NoError(t, f.repo.Create(ctx, s))
	require.NoError(t, f.store.Put(ctx, s.VideoKey, strings.NewReader("fake webm")))
	require.NoError(t, f.repo.SetStatus(ctx, s.ID, session.StatusProcessing))
	return s
}

func (f *fixture) status(t *testing.T, id int64) session.Status {
	t.Helper()
	s, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return s.Status
}

func completedPayload() map[string]any {
	return map[string]any{
		"id":               "job9",
		"status":           "COMPLETED",
		"confidence_score": 82.5,
		"fps":              2.0,
		"frames": []any{
			map[string]any{"valence_arousal": map[string]any{"valence": 0.3, "arousal": 0.6}},
			map[string]any{"valence_arousal": map[string]any{"valence": 0.1}},
		},
	}
}

func TestRunner_Run_Success(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.MatchedBy(func(path string) bool {
		return strings.Contains(path, fmt.Sprintf("session-%d-", s.ID))
	})).Return("job9", nil)
	f.client.On("AwaitResult", mock.Anything, "job9").Return(completedPayload(), nil)

	require.NoError(t, f.runner.Run(context.Background(), s.ID))

	assert.Equal(t, session.StatusCompleted, f.status(t, s.ID))

	result, err := f.repo.FindResult(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 82.5, result.Confidence)
	assert.Equal(t, 0.0, result.Clarity)
	require.Len(t, result.Metrics.Timeline, 1)
	assert.Equal(t, 0.3, result.Metrics.Timeline[0].Valence)
	assert.Equal(t, 0.6, result.Metrics.Timeline[0].Arousal)

	f.client.AssertExpectations(t)
}

func TestRunner_Run_ScratchCleanedUp(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job9", nil)
	f.client.On("AwaitResult", mock.Anything, "job9").Return(completedPayload(), nil)

	require.NoError(t, f.runner.Run(context.Background(), s.ID))

	entries, err := os.ReadDir(f.scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file must be removed on every exit path")
}

func TestRunner_Run_MediaFetchFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Session exists but its media was never uploaded.
	s := session.New("q", "uploads/ghost.webm")
	require.NoError(t, f.repo.Create(ctx, s))
	require.NoError(t, f.repo.SetStatus(ctx, s.ID, session.StatusProcessing))

	err := f.runner.Run(ctx, s.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
	f.client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestRunner_Run_SubmissionFailure(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.Anything).
		Return("", fmt.Errorf("upload rejected: %w", imentiv.ErrNoJobID))

	err := f.runner.Run(context.Background(), s.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, imentiv.ErrNoJobID)

	// Never stuck at processing, and no result row was created.
	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
	_, err = f.repo.FindResult(context.Background(), s.ID)
	assert.ErrorIs(t, err, session.ErrNoResult)
}

func TestRunner_Run_ExternalJobFailed(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job9", nil)
	f.client.On("AwaitResult", mock.Anything, "job9").
		Return(nil, fmt.Errorf("%w: job job9", imentiv.ErrJobFailed))

	err := f.runner.Run(context.Background(), s.ID)
	assert.ErrorIs(t, err, imentiv.ErrJobFailed)
	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
}

func TestRunner_Run_PollTimeout(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job9", nil)
	f.client.On("AwaitResult", mock.Anything, "job9").
		Return(nil, fmt.Errorf("%w after 10m", imentiv.ErrPollTimeout))

	err := f.runner.Run(context.Background(), s.ID)
	assert.ErrorIs(t, err, imentiv.ErrPollTimeout)
	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
}

func TestRunner_Run_PanicMarksFailed(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)

	f.client.On("Submit", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("corrupt payload")
	}).Return("job9", nil)

	err := f.runner.Run(context.Background(), s.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt payload")

	// A panic mid-run still converges the session; it never stays processing.
	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
	_, err = f.repo.FindResult(context.Background(), s.ID)
	assert.ErrorIs(t, err, session.ErrNoResult)

	entries, err := os.ReadDir(f.scratchDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file must be removed even when the run panics")
}

func TestRunner_Run_UnknownSession(t *testing.T) {
	f := newFixture(t)

	err := f.runner.Run(context.Background(), 404)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

// Re-triggering a session that already holds a result must replace it, not
// duplicate it.
func TestRunner_Run_RetriggerReplacesResult(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)
	ctx := context.Background()

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job-a", nil).Once()
	f.client.On("AwaitResult", mock.Anything, "job-a").Return(map[string]any{
		"confidence_score": 40.0,
		"summary":          "first run",
	}, nil).Once()

	require.NoError(t, f.runner.Run(ctx, s.ID))

	// A user re-triggers the completed session.
	require.NoError(t, f.repo.SetStatus(ctx, s.ID, session.StatusProcessing))

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job-b", nil).Once()
	f.client.On("AwaitResult", mock.Anything, "job-b").Return(map[string]any{
		"confidence_score": 90.0,
		"summary":          "second run",
	}, nil).Once()

	require.NoError(t, f.runner.Run(ctx, s.ID))

	result, err := f.repo.FindResult(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 90.0, result.Confidence)
	assert.Equal(t, "second run", result.Summary)
}

// A run whose session reached a terminal state elsewhere must not flip it
// back; the transition is skipped, not forced.
func TestRunner_Run_TerminalStateNotResurrected(t *testing.T) {
	f := newFixture(t)
	s := f.seedSession(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SetStatus(ctx, s.ID, session.StatusFailed))

	f.client.On("Submit", mock.Anything, mock.Anything).Return("job9", nil)
	f.client.On("AwaitResult", mock.Anything, "job9").Return(completedPayload(), nil)

	require.NoError(t, f.runner.Run(ctx, s.ID))

	assert.Equal(t, session.StatusFailed, f.status(t, s.ID))
}

func TestRunner_Run_RepositoryFactoryError(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	runner, err := NewRunner(
		func() (session.Repository, error) { return nil, errors.New("db unavailable") },
		store, &mockClient{}, t.TempDir(), nil,
	)
	require.NoError(t, err)

	err = runner.Run(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unavailable")
}
