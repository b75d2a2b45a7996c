package postgresql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, type, payload, article_id, status, attempts, max_attempts, priority,
error, assigned_worker, created_at, started_at, completed_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	payload := job.RawPayload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	const q = `
INSERT INTO jobs (id, type, payload, article_id, status, attempts, max_attempts, priority, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'pending', 0, $5, $6, $7, $7);
`
	_, err := r.pool.Exec(ctx, q,
		job.ID, string(job.Type), payload, job.ArticleID,
		job.MaxAttempts, job.Priority, job.CreatedAt,
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1;`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending leases up to limit pending jobs of typ in one statement.
// SKIP LOCKED lets concurrent claimers pass over rows another transaction is
// already taking, so no row is returned to two callers.
func (r *JobRepository) ClaimPending(ctx context.Context, typ entity.JobType, limit int, worker string, now time.Time) ([]*entity.Job, error) {
	const q = `
UPDATE jobs
SET status = 'processing', started_at = $4, assigned_worker = $3, updated_at = $4
WHERE status = 'pending' AND id IN (
    SELECT id FROM jobs
    WHERE type = $1 AND status = 'pending'
    ORDER BY priority DESC, created_at ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns + `;
`
	rows, err := r.pool.Query(ctx, q, string(typ), limit, worker, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not keep the subquery order
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *JobRepository) ClaimByID(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error) {
	const q = `
UPDATE jobs SET status = 'processing', started_at = $3, assigned_worker = $2, updated_at = $3
WHERE id = $1 AND status = 'pending';
`
	tag, err := r.pool.Exec(ctx, q, id, worker, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepository) ReclaimFailed(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error) {
	const q = `
UPDATE jobs SET status = 'processing', started_at = $3, assigned_worker = $2, updated_at = $3
WHERE id = $1 AND status = 'failed' AND attempts < max_attempts;
`
	tag, err := r.pool.Exec(ctx, q, id, worker, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'completed', completed_at = $2, assigned_worker = NULL, updated_at = $2
WHERE id = $1 AND status IN ('pending', 'processing');
`
	tag, err := r.pool.Exec(ctx, q, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainNoop(ctx, id, entity.StatusCompleted)
}

// Fail records one failed attempt atomically. The CASE reads the pre-update
// attempts value, so attempts never passes max_attempts.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, errText string, permanent bool, now time.Time) (repository.FailResult, error) {
	const q = `
UPDATE jobs SET
    attempts = attempts + 1,
    status = CASE WHEN $3 OR attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
    error = $2,
    assigned_worker = NULL,
    updated_at = $4
WHERE id = $1 AND status IN ('pending', 'processing')
RETURNING status, attempts;
`
	var (
		res    repository.FailResult
		status string
	)
	err := r.pool.QueryRow(ctx, q, id, errText, permanent, now).Scan(&status, &res.Attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, r.explainNoop(ctx, id, "")
		}
		return res, err
	}
	res.Status = entity.JobStatus(status)
	return res, nil
}

func (r *JobRepository) Reset(ctx context.Context, id uuid.UUID, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'pending', attempts = 0, assigned_worker = NULL,
    started_at = NULL, completed_at = NULL, updated_at = $2
WHERE id = $1 AND status <> 'processing';
`
	tag, err := r.pool.Exec(ctx, q, id, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return r.explainNoop(ctx, id, "")
}

func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	const q = `
UPDATE jobs SET status = 'pending', assigned_worker = NULL, updated_at = $2
WHERE status = 'processing' AND started_at < $1;
`
	tag, err := r.pool.Exec(ctx, q, cutoff, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) Stats(ctx context.Context, since time.Time) (repository.JobStats, error) {
	stats := repository.JobStats{ByStatus: map[entity.JobStatus]int{}}

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[entity.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	const q = `
SELECT
    COUNT(*) FILTER (WHERE status = 'completed' AND completed_at >= $1),
    COUNT(*) FILTER (WHERE status = 'failed' AND updated_at >= $1)
FROM jobs;
`
	if err := r.pool.QueryRow(ctx, q, since).Scan(&stats.CompletedToday, &stats.FailedToday); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *JobRepository) List(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = arg(string(s))
		}
		where = append(where, "status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Type != "" {
		where = append(where, "type = "+arg(string(f.Type)))
	}
	if f.ArticleID > 0 {
		where = append(where, "article_id = "+arg(f.ArticleID))
	}
	if !f.CreatedSince.IsZero() {
		where = append(where, "created_at >= "+arg(f.CreatedSince))
	}

	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC LIMIT ` + arg(f.EffectiveLimit())

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *JobRepository) HasOpen(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	const q = `
SELECT EXISTS (
    SELECT 1 FROM jobs
    WHERE type = $1 AND article_id = $2 AND status IN ('pending', 'processing')
);
`
	var ok bool
	err := r.pool.QueryRow(ctx, q, string(typ), articleID).Scan(&ok)
	return ok, err
}

func (r *JobRepository) Exists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM jobs WHERE type = $1 AND article_id = $2);`
	var ok bool
	err := r.pool.QueryRow(ctx, q, string(typ), articleID).Scan(&ok)
	return ok, err
}

// explainNoop turns a conditional update that matched nothing into the right
// error. A row already in okStatus is not an error.
func (r *JobRepository) explainNoop(ctx context.Context, id uuid.UUID, okStatus entity.JobStatus) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	if okStatus != "" && entity.JobStatus(status) == okStatus {
		return nil
	}
	return fmt.Errorf("%w: job %s is %s", repository.ErrStateConflict, id, status)
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	var (
		job     entity.Job
		typ     string
		status  string
		payload []byte
	)
	if err := row.Scan(
		&job.ID,
		&typ,
		&payload,
		&job.ArticleID,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Priority,
		&job.Error,          // NULL => nil
		&job.AssignedWorker, // NULL => nil
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Type = entity.JobType(typ)
	job.Status = entity.JobStatus(status)
	job.RawPayload = payload

	p, err := entity.DecodePayload(job.Type, payload)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Payload = p
	return &job, nil
}
