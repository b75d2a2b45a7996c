package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrInvalidState = errors.New("invalid job state")
	ErrNotFound     = repository.ErrNotFound
)

// JobStore is the persistence port (implementations: postgresql.JobRepository,
// sqlite.JobRepository).
type JobStore interface {
	Create(ctx context.Context, job *entity.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ClaimPending(ctx context.Context, typ entity.JobType, limit int, worker string, now time.Time) ([]*entity.Job, error)
	ClaimByID(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error)
	ReclaimFailed(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, now time.Time) error
	Fail(ctx context.Context, id uuid.UUID, errText string, permanent bool, now time.Time) (repository.FailResult, error)
	Reset(ctx context.Context, id uuid.UUID, now time.Time) error
	ReclaimStale(ctx context.Context, cutoff, now time.Time) (int64, error)
	Stats(ctx context.Context, since time.Time) (repository.JobStats, error)
	List(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error)
	HasOpen(ctx context.Context, typ entity.JobType, articleID int64) (bool, error)
	Exists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error)
}

const (
	DefaultLease      = 5 * time.Minute
	DefaultClaimLimit = 5
	MaxClaimLimit     = 100
	maxErrorLen       = 1000
)

type Options struct {
	Lease  time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// QueueManager is the only component that mutates job rows.
type QueueManager struct {
	store JobStore
	lease time.Duration
	now   func() time.Time
	log   *slog.Logger
}

func NewQueueManager(store JobStore, opts Options) *QueueManager {
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueueManager{
		store: store,
		lease: opts.Lease,
		now:   func() time.Time { return opts.Now().UTC() },
		log:   opts.Logger,
	}
}

type CreateJobRequest struct {
	Type        string
	Payload     json.RawMessage
	Priority    *int
	MaxAttempts *int
}

// CreateJob validates the payload against its type and inserts a pending job.
func (s *QueueManager) CreateJob(ctx context.Context, req CreateJobRequest) (uuid.UUID, error) {
	typ, ok := entity.ParseJobType(req.Type)
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: unknown job type %q", ErrValidation, req.Type)
	}
	if len(req.Payload) == 0 {
		return uuid.Nil, fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if err := ValidatePayload(typ, req.Payload); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p, err := entity.DecodePayload(typ, req.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	priority := entity.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	maxAttempts := entity.DefaultMaxAttempts
	if req.MaxAttempts != nil {
		maxAttempts = *req.MaxAttempts
	}
	if maxAttempts < 1 {
		return uuid.Nil, fmt.Errorf("%w: max_attempts must be >= 1", ErrValidation)
	}

	return s.insert(ctx, typ, p, req.Payload, priority, maxAttempts)
}

// Enqueue creates a job from an already typed payload.
func (s *QueueManager) Enqueue(ctx context.Context, p entity.Payload, priority int) (uuid.UUID, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}
	return s.CreateJob(ctx, CreateJobRequest{Type: string(p.JobType()), Payload: raw, Priority: &priority})
}

func (s *QueueManager) insert(ctx context.Context, typ entity.JobType, p entity.Payload, raw []byte, priority, maxAttempts int) (uuid.UUID, error) {
	job := &entity.Job{
		ID:          uuid.New(),
		Type:        typ,
		Payload:     p,
		RawPayload:  raw,
		ArticleID:   p.ArticleRef(),
		Status:      entity.StatusPending,
		MaxAttempts: maxAttempts,
		Priority:    priority,
		CreatedAt:   s.now(),
	}
	if err := s.store.Create(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	s.log.Info("job created",
		"job_id", job.ID.String(), "type", typ, "article_id", job.ArticleID, "priority", priority)
	return job.ID, nil
}

// ClaimJobsForWorker leases up to limit pending jobs of typ to workerID.
func (s *QueueManager) ClaimJobsForWorker(ctx context.Context, typ entity.JobType, limit int, workerID string) ([]*entity.Job, error) {
	if _, ok := entity.ParseJobType(string(typ)); !ok {
		return nil, fmt.Errorf("%w: unknown job type %q", ErrValidation, typ)
	}
	if limit <= 0 {
		limit = DefaultClaimLimit
	}
	if limit > MaxClaimLimit {
		limit = MaxClaimLimit
	}
	now := s.now()
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s-%d", typ, now.UnixNano())
	}

	jobs, err := s.store.ClaimPending(ctx, typ, limit, workerID, now)
	if err != nil {
		return nil, fmt.Errorf("claim %s jobs: %w", typ, err)
	}
	if len(jobs) > 0 {
		s.log.Info("jobs claimed", "type", typ, "worker", workerID, "count", len(jobs))
	}
	return jobs, nil
}

// ClaimJob leases a single pending job. A job that is no longer pending
// yields ErrInvalidState.
func (s *QueueManager) ClaimJob(ctx context.Context, id uuid.UUID, workerID string) (*entity.Job, error) {
	ok, err := s.store.ClaimByID(ctx, id, workerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("claim job %s: %w", id, err)
	}
	if !ok {
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: job %s is not pending", ErrInvalidState, id)
	}
	return s.store.GetByID(ctx, id)
}

// CompleteJob is idempotent for completed jobs.
func (s *QueueManager) CompleteJob(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Complete(ctx, id, s.now()); err != nil {
		return mapStoreErr(err)
	}
	s.log.Info("job completed", "job_id", id.String())
	return nil
}

// FailJob records one failed attempt. A permanent failure goes straight to
// failed regardless of the remaining budget.
func (s *QueueManager) FailJob(ctx context.Context, id uuid.UUID, errText string, permanent bool) (repository.FailResult, error) {
	errText = entity.ClipText(errText, maxErrorLen)
	if errText == "" {
		errText = "unknown error"
	}
	res, err := s.store.Fail(ctx, id, errText, permanent, s.now())
	if err != nil {
		return res, mapStoreErr(err)
	}
	s.log.Warn("job failed",
		"job_id", id.String(), "status", res.Status, "attempts", res.Attempts,
		"permanent", permanent, "error", errText)
	return res, nil
}

// RetryJob is the manual operator reset: attempts cleared, back to pending.
func (s *QueueManager) RetryJob(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Reset(ctx, id, s.now()); err != nil {
		return mapStoreErr(err)
	}
	s.log.Info("job reset for retry", "job_id", id.String())
	return nil
}

// ReclaimFailed leases a failed job that still has attempt budget.
func (s *QueueManager) ReclaimFailed(ctx context.Context, id uuid.UUID, workerID string) (*entity.Job, error) {
	ok, err := s.store.ReclaimFailed(ctx, id, workerID, s.now())
	if err != nil {
		return nil, fmt.Errorf("reclaim job %s: %w", id, err)
	}
	if !ok {
		if _, err := s.store.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: job %s is not a retryable failure", ErrInvalidState, id)
	}
	return s.store.GetByID(ctx, id)
}

// Cleanup returns processing jobs whose lease expired to pending.
func (s *QueueManager) Cleanup(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.store.ReclaimStale(ctx, now.Add(-s.lease), now)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if n > 0 {
		s.log.Info("stale jobs reclaimed", "count", n, "lease", s.lease.String())
	}
	return n, nil
}

type Stats struct {
	Pending        int                      `json:"pending"`
	Processing     int                      `json:"processing"`
	CompletedToday int                      `json:"completed_today"`
	FailedToday    int                      `json:"failed_today"`
	ByStatus       map[entity.JobStatus]int `json:"by_status"`
}

// Stats counts jobs by status; the "today" counters start at 00:00 UTC.
func (s *QueueManager) Stats(ctx context.Context) (Stats, error) {
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	raw, err := s.store.Stats(ctx, midnight)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	return Stats{
		Pending:        raw.ByStatus[entity.StatusPending],
		Processing:     raw.ByStatus[entity.StatusProcessing],
		CompletedToday: raw.CompletedToday,
		FailedToday:    raw.FailedToday,
		ByStatus:       raw.ByStatus,
	}, nil
}

func (s *QueueManager) ListJobs(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error) {
	if f.Limit > MaxClaimLimit*10 {
		f.Limit = MaxClaimLimit * 10
	}
	return s.store.List(ctx, f)
}

func (s *QueueManager) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.store.GetByID(ctx, id)
}

// HasOpenJob reports whether a pending or processing job of typ exists for the article.
func (s *QueueManager) HasOpenJob(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	return s.store.HasOpen(ctx, typ, articleID)
}

// JobExists reports whether any job of typ was ever created for the article.
func (s *QueueManager) JobExists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	return s.store.Exists(ctx, typ, articleID)
}

func mapStoreErr(err error) error {
	if errors.Is(err, repository.ErrStateConflict) {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return err
}
