package imentiv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Static errors for Imentiv client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is provided.
	ErrAPIKeyNotSet = errors.New("imentiv: API key is required")
	// ErrJobIDRequired is returned when the job ID is not provided.
	ErrJobIDRequired = errors.New("imentiv: job ID is required")
	// ErrNoJobID is returned when the submit response contains no job ID.
	ErrNoJobID = errors.New("imentiv: submit failed: no job ID in response")
	// ErrSubmitFailed is returned when the video upload fails.
	ErrSubmitFailed = errors.New("imentiv: submit failed")
	// ErrJobFailed is returned when the API explicitly reports job failure.
	ErrJobFailed = errors.New("imentiv: job failed")
	// ErrPollTimeout is returned when the poll budget is exhausted without
	// the job reaching a terminal status.
	ErrPollTimeout = errors.New("imentiv: poll timeout: job did not reach a terminal status")
	// ErrTransport is returned when a request fails at the transport level.
	ErrTransport = errors.New("imentiv: transport error")
	// ErrRequestFailed is returned when a request fails with a non-2xx status.
	ErrRequestFailed = errors.New("imentiv: request failed")
)

// listPageSize is the fixed page size requested from the listing endpoint.
const listPageSize = 50

// Client defines the interface for interacting with the Imentiv API.
type Client interface {
	// Submit uploads the video at the given path and returns the job ID.
	Submit(ctx context.Context, videoPath string) (jobID string, err error)

	// AwaitResult blocks until the job reaches a terminal status or the poll
	// budget is exhausted, and returns the raw result payload.
	AwaitResult(ctx context.Context, jobID string) (map[string]any, error)
}

// HTTPClient is the HTTP implementation of the Imentiv Client interface.
//
// The API's per-job status endpoint rejects requests, so job status is
// derived from the paginated listing endpoint instead: each poll fetches the
// most recent jobs and scans the page for the tracked ID.
type HTTPClient struct {
	apiKey            string
	baseURL           string
	httpClient        *http.Client
	pollInterval      time.Duration
	maxWait           time.Duration
	frameWaitAttempts int
	logger            *slog.Logger
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithBaseURL sets a custom base URL for the Imentiv API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithPollInterval sets the sleep between poll attempts.
func WithPollInterval(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.pollInterval = d
	}
}

// WithMaxWait sets the maximum total wait for a job to reach a terminal
// status.
func WithMaxWait(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxWait = d
	}
}

// WithFrameWaitAttempts sets how many detail fetches to attempt while
// waiting for per-frame data to appear in a completed payload.
func WithFrameWaitAttempts(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.frameWaitAttempts = n
	}
}

// WithLogger sets the structured logger used for poll progress.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(hc *HTTPClient) {
		hc.logger = logger
	}
}

// NewClient creates a new Imentiv HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable IMENTIV_API_KEY.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:           "https://api.imentiv.ai/v1",
		httpClient:        &http.Client{Timeout: 60 * time.Second},
		pollInterval:      5 * time.Second,
		maxWait:           10 * time.Minute,
		frameWaitAttempts: 10,
		logger:            slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("IMENTIV_API_KEY")
	}
	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit uploads the video file to the API and returns the assigned job ID.
func (c *HTTPClient) Submit(ctx context.Context, videoPath string) (string, error) {
	f, err := os.Open(videoPath) // #nosec G304 - path is a scratch file owned by the orchestrator
	if err != nil {
		return "", fmt.Errorf("%w: open video: %w", ErrSubmitFailed, err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("video_file", filepath.Base(videoPath))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		fields := []struct {
			name, value string
		}{
			{"title", "Session " + filepath.Base(videoPath)},
			{"description", "Behavioural coach analysis session"},
			{"annotated_video_mp4", "false"},
		}
		for _, field := range fields {
			if err := mw.WriteField(field.name, field.value); err != nil {
				_ = pw.CloseWithError(err)
				return
			}
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/videos", pr)
	if err != nil {
		return "", fmt.Errorf("imentiv: create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrSubmitFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w with status %d: %s", ErrSubmitFailed, resp.StatusCode, string(body))
	}

	var sr submitResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("%w: unmarshal response: %w", ErrSubmitFailed, err)
	}
	if sr.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoJobID, string(body))
	}

	return sr.ID, nil
}

// AwaitResult polls the listing endpoint until the job reaches a terminal
// status, then waits for per-frame data before returning the raw payload.
//
// A job absent from the listing page is still pending, not an error: list
// visibility lags submission. Transport errors during a poll are fatal for
// the run so an outage is never mistaken for "still processing".
func (c *HTTPClient) AwaitResult(ctx context.Context, jobID string) (map[string]any, error) {
	if jobID == "" {
		return nil, ErrJobIDRequired
	}

	deadline := time.Now().Add(c.maxWait)

	for {
		outcome, err := c.pollOnce(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch outcome.State {
		case StateSucceeded:
			c.logger.Info("analysis job succeeded",
				slog.String("job_id", jobID),
			)
			return c.awaitFrameData(ctx, jobID, outcome.Entry), nil

		case StateFailed:
			raw, _ := json.Marshal(outcome.Entry)
			return nil, fmt.Errorf("%w: job %s: %s", ErrJobFailed, jobID, string(raw))

		case StatePending:
			if outcome.Entry == nil {
				c.logger.Warn("job not visible in listing yet",
					slog.String("job_id", jobID),
				)
			}
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: job %s after %s", ErrPollTimeout, jobID, c.maxWait)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("imentiv: context cancelled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// pollOnce fetches one listing page and scans it for the job.
func (c *HTTPClient) pollOnce(ctx context.Context, jobID string) (PollOutcome, error) {
	url := fmt.Sprintf("%s/videos?page_size=%d", c.baseURL, listPageSize)

	var page map[string]any
	if err := c.getJSON(ctx, url, &page); err != nil {
		return PollOutcome{}, err
	}

	entry := findEntry(page, jobID)
	if entry == nil {
		return PollOutcome{State: StatePending}, nil
	}

	status, _ := entry["status"].(string)
	state := normalizeStatus(status)
	c.logger.Debug("poll attempt",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	switch state {
	case StateSucceeded, StateFailed:
		return PollOutcome{State: state, Entry: entry}, nil
	default:
		return PollOutcome{State: StatePending, Entry: entry}, nil
	}
}

// awaitFrameData polls the detail endpoint until per-frame emotion data is
// populated, up to the configured attempt budget. The job is already
// complete at this point, so exhausting the budget degrades to the best
// payload seen rather than failing the run.
func (c *HTTPClient) awaitFrameData(ctx context.Context, jobID string, best map[string]any) map[string]any {
	if hasFrameData(best) {
		return best
	}

	url := fmt.Sprintf("%s/videos/%s", c.baseURL, jobID)

	for attempt := 1; attempt <= c.frameWaitAttempts; attempt++ {
		var detail map[string]any
		if err := c.getJSON(ctx, url, &detail); err != nil {
			// A transient fetch failure spends one attempt, not the whole
			// budget; the job is already complete.
			c.logger.Warn("detail fetch failed while waiting for frame data",
				slog.String("job_id", jobID),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		} else {
			if len(detail) > 0 {
				best = detail
			}
			if hasFrameData(best) {
				return best
			}
			c.logger.Info("frame data not populated yet",
				slog.String("job_id", jobID),
				slog.Int("attempt", attempt),
			)
		}

		select {
		case <-ctx.Done():
			return best
		case <-time.After(c.pollInterval):
		}
	}

	c.logger.Warn("proceeding without frame data",
		slog.String("job_id", jobID),
	)
	return best
}

// getJSON performs a single GET request and decodes the JSON response.
// Transport failures and non-2xx responses are not retried here; the poll
// loop owns retry policy.
func (c *HTTPClient) getJSON(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("imentiv: create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("imentiv: unmarshal response: %w", err)
	}
	return nil
}

// setHeaders applies the authentication headers the API requires.
// The Referer header is mandatory for key validation.
func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Referer", "https://localhost:3000")
	req.Header.Set("User-Agent", "coach-api/1.0")
}

// findEntry scans a listing page for the entry with the given job ID.
// Entries live under "documents", with "data" as an observed fallback.
func findEntry(page map[string]any, jobID string) map[string]any {
	entries, ok := page["documents"].([]any)
	if !ok {
		entries, _ = page["data"].([]any)
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := entry["id"].(string); id == jobID {
			return entry
		}
	}
	return nil
}

// hasFrameData reports whether a payload carries a non-empty per-frame
// emotion sequence under either known field name.
func hasFrameData(payload map[string]any) bool {
	for _, key := range []string{"frames", "video_emotions"} {
		if frames, ok := payload[key].([]any); ok && len(frames) > 0 {
			return true
		}
	}
	return false
}
