// Package queueclient talks to the Queue Manager HTTP API. Client satisfies
// worker.Queue, so a stage worker can run against a remote queue.
package queueclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
)

// APIError is a non-2xx answer. It unwraps to the service sentinel matching
// the status code, so callers can keep using errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("queue manager: http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return service.ErrValidation
	case http.StatusNotFound:
		return service.ErrNotFound
	case http.StatusConflict:
		return service.ErrInvalidState
	}
	return nil
}

type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying client, e.g. for httptest servers.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

type createJobRequest struct {
	Type        entity.JobType `json:"type"`
	Payload     entity.Payload `json:"payload"`
	Priority    *int           `json:"priority,omitempty"`
	MaxAttempts *int           `json:"max_attempts,omitempty"`
}

// Enqueue creates a job for a typed payload.
func (c *Client) Enqueue(ctx context.Context, p entity.Payload, priority int) (uuid.UUID, error) {
	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	err := c.do(ctx, http.MethodPost, "/jobs", createJobRequest{
		Type: p.JobType(), Payload: p, Priority: &priority,
	}, &resp)
	return resp.JobID, err
}

func (c *Client) ClaimJobsForWorker(ctx context.Context, typ entity.JobType, limit int, workerID string) ([]*entity.Job, error) {
	req := struct {
		WorkerType entity.JobType `json:"worker_type"`
		Limit      int            `json:"limit,omitempty"`
		WorkerID   string         `json:"worker_id,omitempty"`
	}{typ, limit, workerID}
	var resp struct {
		Jobs []*entity.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodPost, "/workers/poll", req, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *Client) ClaimJob(ctx context.Context, id uuid.UUID, workerID string) (*entity.Job, error) {
	req := struct {
		WorkerID string `json:"worker_id,omitempty"`
	}{workerID}
	var job entity.Job
	if err := c.do(ctx, http.MethodPost, "/jobs/"+id.String()+"/claim", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) CompleteJob(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+id.String()+"/complete", nil, nil)
}

func (c *Client) FailJob(ctx context.Context, id uuid.UUID, errText string, permanent bool) (repository.FailResult, error) {
	req := struct {
		Error     string `json:"error"`
		Permanent bool   `json:"permanent,omitempty"`
	}{errText, permanent}
	var resp struct {
		Status   entity.JobStatus `json:"status"`
		Attempts int              `json:"attempts"`
	}
	err := c.do(ctx, http.MethodPost, "/jobs/"+id.String()+"/fail", req, &resp)
	return repository.FailResult{Status: resp.Status, Attempts: resp.Attempts}, err
}

func (c *Client) RetryJob(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+id.String()+"/retry", nil, nil)
}

// Cleanup triggers stale-lease recovery and returns the number of reset jobs.
func (c *Client) Cleanup(ctx context.Context) (int64, error) {
	var resp struct {
		Reclaimed int64 `json:"reclaimed"`
	}
	err := c.do(ctx, http.MethodPost, "/cleanup", nil, &resp)
	return resp.Reclaimed, err
}

func (c *Client) Stats(ctx context.Context) (service.Stats, error) {
	var s service.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &s)
	return s, err
}

func (c *Client) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var job entity.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+id.String(), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error) {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		parts := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.ArticleID > 0 {
		q.Set("article_id", strconv.FormatInt(f.ArticleID, 10))
	}
	if !f.CreatedSince.IsZero() {
		q.Set("created_since", f.CreatedSince.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	path := "/jobs"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var resp struct {
		Jobs []*entity.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (c *Client) HasOpenJob(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	jobs, err := c.ListJobs(ctx, repository.JobFilter{
		Statuses:  []entity.JobStatus{entity.StatusPending, entity.StatusProcessing},
		Type:      typ,
		ArticleID: articleID,
		Limit:     1,
	})
	return len(jobs) > 0, err
}

func (c *Client) JobExists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	jobs, err := c.ListJobs(ctx, repository.JobFilter{Type: typ, ArticleID: articleID, Limit: 1})
	return len(jobs) > 0, err
}

// Health reports whether the queue manager answers /health.
func (c *Client) Health(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("queue manager unhealthy: %w", err)
	}
	return err
}
