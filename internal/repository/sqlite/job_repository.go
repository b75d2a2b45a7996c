package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, type, payload, article_id, status, attempts, max_attempts, priority,
error, assigned_worker, created_at, started_at, completed_at, updated_at`

// claimRounds bounds how often ClaimPending re-selects after losing races.
const claimRounds = 10

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	payload := job.RawPayload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	const q = `
INSERT INTO jobs (id, type, payload, article_id, status, attempts, max_attempts, priority, created_at, updated_at)
VALUES (?, ?, ?, ?, 'pending', 0, ?, ?, ?, ?);
`
	created := formatTime(job.CreatedAt)
	_, err := r.db.ExecContext(ctx, q,
		job.ID.String(), string(job.Type), string(payload), job.ArticleID,
		job.MaxAttempts, job.Priority, created, created,
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?;`, id.String())
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// ClaimPending selects candidates and leases each with a conditional update.
// A row taken by someone else between select and update is skipped, and the
// select is repeated until limit rows are held or nothing pending is left.
func (r *JobRepository) ClaimPending(ctx context.Context, typ entity.JobType, limit int, worker string, now time.Time) ([]*entity.Job, error) {
	var claimed []*entity.Job
	for round := 0; round < claimRounds && len(claimed) < limit; round++ {
		ids, err := r.pendingIDs(ctx, typ, limit-len(claimed))
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			ok, err := r.ClaimByID(ctx, id, worker, now)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			job, err := r.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (r *JobRepository) pendingIDs(ctx context.Context, typ entity.JobType, limit int) ([]uuid.UUID, error) {
	const q = `
SELECT id FROM jobs
WHERE type = ? AND status = 'pending'
ORDER BY priority DESC, created_at ASC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, string(typ), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("job id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *JobRepository) ClaimByID(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error) {
	const q = `
UPDATE jobs SET status = 'processing', started_at = ?, assigned_worker = ?, updated_at = ?
WHERE id = ? AND status = 'pending';
`
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, q, ts, worker, ts, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *JobRepository) ReclaimFailed(ctx context.Context, id uuid.UUID, worker string, now time.Time) (bool, error) {
	const q = `
UPDATE jobs SET status = 'processing', started_at = ?, assigned_worker = ?, updated_at = ?
WHERE id = ? AND status = 'failed' AND attempts < max_attempts;
`
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, q, ts, worker, ts, id.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'completed', completed_at = ?, assigned_worker = NULL, updated_at = ?
WHERE id = ? AND status IN ('pending', 'processing');
`
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, q, ts, ts, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.explainNoop(ctx, id, entity.StatusCompleted)
}

// Fail records one failed attempt. SQLite evaluates the CASE against the
// pre-update row, so attempts and status move together.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, errText string, permanent bool, now time.Time) (repository.FailResult, error) {
	const q = `
UPDATE jobs SET
    attempts = attempts + 1,
    status = CASE WHEN ? OR attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
    error = ?,
    assigned_worker = NULL,
    updated_at = ?
WHERE id = ? AND status IN ('pending', 'processing')
RETURNING status, attempts;
`
	var (
		res    repository.FailResult
		status string
	)
	err := r.db.QueryRowContext(ctx, q, permanent, errText, formatTime(now), id.String()).Scan(&status, &res.Attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
    started_at = NULL, completed_at = NULL, updated_at = ?
WHERE id = ? AND status <> 'processing';
`
	res, err := r.db.ExecContext(ctx, q, formatTime(now), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.explainNoop(ctx, id, "")
}

func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	const q = `
UPDATE jobs SET status = 'pending', assigned_worker = NULL, updated_at = ?
WHERE status = 'processing' AND started_at < ?;
`
	res, err := r.db.ExecContext(ctx, q, formatTime(now), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *JobRepository) Stats(ctx context.Context, since time.Time) (repository.JobStats, error) {
	stats := repository.JobStats{ByStatus: map[entity.JobStatus]int{}}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[entity.JobStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, err
	}
	rows.Close()

	const q = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'completed' AND completed_at >= ? THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' AND updated_at >= ? THEN 1 ELSE 0 END), 0)
FROM jobs;
`
	ts := formatTime(since)
	if err := r.db.QueryRowContext(ctx, q, ts, ts).Scan(&stats.CompletedToday, &stats.FailedToday); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *JobRepository) List(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.ArticleID > 0 {
		where = append(where, "article_id = ?")
		args = append(args, f.ArticleID)
	}
	if !f.CreatedSince.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.CreatedSince))
	}

	q := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, f.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx, q, args...)
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
    WHERE type = ? AND article_id = ? AND status IN ('pending', 'processing')
);
`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, string(typ), articleID).Scan(&ok)
	return ok, err
}

func (r *JobRepository) Exists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM jobs WHERE type = ? AND article_id = ?);`
	var ok bool
	err := r.db.QueryRowContext(ctx, q, string(typ), articleID).Scan(&ok)
	return ok, err
}

func (r *JobRepository) explainNoop(ctx context.Context, id uuid.UUID, okStatus entity.JobStatus) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?;`, id.String()).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	if okStatus != "" && entity.JobStatus(status) == okStatus {
		return nil
	}
	return fmt.Errorf("%w: job %s is %s", repository.ErrStateConflict, id, status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*entity.Job, error) {
	var (
		job         entity.Job
		rawID       string
		typ         string
		status      string
		payload     string
		errText     sql.NullString
		worker      sql.NullString
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		updatedAt   string
	)
	if err := row.Scan(
		&rawID,
		&typ,
		&payload,
		&job.ArticleID,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.Priority,
		&errText,
		&worker,
		&createdAt,
		&startedAt,
		&completedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("job id %q: %w", rawID, err)
	}
	job.ID = id
	job.Type = entity.JobType(typ)
	job.Status = entity.JobStatus(status)
	job.RawPayload = []byte(payload)
	if errText.Valid {
		job.Error = &errText.String
	}
	if worker.Valid {
		job.AssignedWorker = &worker.String
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("job %s created_at: %w", id, err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("job %s updated_at: %w", id, err)
	}
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)

	p, err := entity.DecodePayload(job.Type, job.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Payload = p
	return &job, nil
}
