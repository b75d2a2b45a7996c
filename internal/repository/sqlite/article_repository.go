package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

type ArticleRepository struct {
	db *sql.DB
}

func NewArticleRepository(db *sql.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const articleColumns = `id, url, source, title, status, content_key, error, translated_at, created_at, updated_at`

func (r *ArticleRepository) Create(ctx context.Context, a *entity.Article, now time.Time) (int64, error) {
	ts := formatTime(now)
	var (
		res sql.Result
		err error
	)
	if a.ID > 0 {
		const q = `
INSERT INTO articles (id, url, source, title, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?);
`
		res, err = r.db.ExecContext(ctx, q, a.ID, a.URL, a.Source, a.Title, nullableString(string(a.Status)), ts, ts)
	} else {
		const q = `
INSERT INTO articles (url, source, title, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?);
`
		res, err = r.db.ExecContext(ctx, q, a.URL, a.Source, a.Title, nullableString(string(a.Status)), ts, ts)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*entity.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?;`, id)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// ApplyStatus swaps the status only if it still equals ch.From.
func (r *ArticleRepository) ApplyStatus(ctx context.Context, id int64, ch entity.StatusChange, now time.Time) error {
	const q = `
UPDATE articles SET
    status = ?,
    content_key = COALESCE(NULLIF(?, ''), content_key),
    error = CASE WHEN ? <> '' THEN ? WHEN ? THEN NULL ELSE error END,
    translated_at = CASE WHEN ? THEN ? ELSE translated_at END,
    updated_at = ?
WHERE id = ? AND COALESCE(status, '') = ?;
`
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, q,
		nullableString(string(ch.To)), ch.ContentKey,
		ch.Error, ch.Error, ch.ClearError,
		ch.MarkTranslated, ts,
		ts, id, string(ch.From),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT status FROM articles WHERE id = ?;`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("%w: article %d is %q, expected %q", repository.ErrStateConflict, id, current.String, ch.From)
}

func (r *ArticleRepository) List(ctx context.Context, f repository.ArticleFilter) ([]*entity.Article, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		var (
			parts []string
			named []any
		)
		for _, s := range f.Statuses {
			if s != entity.ArticlePending {
				named = append(named, string(s))
			}
		}
		if len(named) > 0 {
			parts = append(parts, "status IN ("+makePlaceholders(len(named))+")")
			args = append(args, named...)
		}
		if f.HasPending() {
			parts = append(parts, "status IS NULL", "status = ''", "status = 'pending'")
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}
	if !f.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= ?")
		args = append(args, formatTime(f.UpdatedSince))
	}
	if f.Untranslated {
		where = append(where, "translated_at IS NULL")
	}

	q := `SELECT ` + articleColumns + ` FROM articles`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.NewestFirst {
		q += ` ORDER BY created_at DESC, id DESC`
	} else {
		q += ` ORDER BY created_at ASC, id ASC`
	}
	q += ` LIMIT ?`
	args = append(args, f.EffectiveLimit())

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ArticleRepository) CountByStatus(ctx context.Context) (map[entity.ArticleStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT COALESCE(status, ''), COUNT(*) FROM articles GROUP BY 1;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[entity.ArticleStatus]int{}
	for rows.Next() {
		var (
			raw   string
			count int
		)
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		st, _ := entity.ParseArticleStatus(raw)
		out[st] += count
	}
	return out, rows.Err()
}

func scanArticle(row rowScanner) (*entity.Article, error) {
	var (
		a          entity.Article
		status     sql.NullString
		contentKey sql.NullString
		errText    sql.NullString
		translated sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := row.Scan(
		&a.ID,
		&a.URL,
		&a.Source,
		&a.Title,
		&status,
		&contentKey,
		&errText,
		&translated,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if status.Valid {
		a.Status, _ = entity.ParseArticleStatus(status.String)
	}
	a.ContentKey = contentKey.String
	a.Error = errText.String
	a.TranslatedAt = parseNullTime(translated)

	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("article %d created_at: %w", a.ID, err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("article %d updated_at: %w", a.ID, err)
	}
	return &a, nil
}
