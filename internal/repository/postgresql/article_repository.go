package postgresql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
)

type ArticleRepository struct {
	pool *pgxpool.Pool
}

func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{pool: pool}
}

const articleColumns = `id, url, source, title, status, content_key, error, translated_at, created_at, updated_at`

// Create inserts a. A non-zero a.ID is kept, otherwise the sequence assigns one.
func (r *ArticleRepository) Create(ctx context.Context, a *entity.Article, now time.Time) (int64, error) {
	var id int64
	if a.ID > 0 {
		const q = `
INSERT INTO articles (id, url, source, title, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
RETURNING id;
`
		if err := r.pool.QueryRow(ctx, q, a.ID, a.URL, a.Source, a.Title, nullableStatus(a.Status), now).Scan(&id); err != nil {
			return 0, err
		}
		// keep the sequence ahead of explicitly chosen ids
		const bump = `SELECT setval(pg_get_serial_sequence('articles', 'id'), GREATEST((SELECT MAX(id) FROM articles), 1));`
		_, err := r.pool.Exec(ctx, bump)
		return id, err
	}
	const q = `
INSERT INTO articles (url, source, title, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
RETURNING id;
`
	err := r.pool.QueryRow(ctx, q, a.URL, a.Source, a.Title, nullableStatus(a.Status), now).Scan(&id)
	return id, err
}

func (r *ArticleRepository) GetByID(ctx context.Context, id int64) (*entity.Article, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1;`, id)
	a, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
    status = $3,
    content_key = COALESCE(NULLIF($4, ''), content_key),
    error = CASE WHEN $5 <> '' THEN $5 WHEN $6 THEN NULL ELSE error END,
    translated_at = CASE WHEN $8 THEN $7 ELSE translated_at END,
    updated_at = $7
WHERE id = $1 AND COALESCE(status, '') = $2;
`
	tag, err := r.pool.Exec(ctx, q, id, string(ch.From), nullableStatus(ch.To), ch.ContentKey, ch.Error, ch.ClearError, now, ch.MarkTranslated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var current *string
	if err := r.pool.QueryRow(ctx, `SELECT status FROM articles WHERE id = $1;`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	got := ""
	if current != nil {
		got = *current
	}
	return fmt.Errorf("%w: article %d is %q, expected %q", repository.ErrStateConflict, id, got, ch.From)
}

func (r *ArticleRepository) List(ctx context.Context, f repository.ArticleFilter) ([]*entity.Article, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		ph := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			if s == entity.ArticlePending {
				continue
			}
			ph = append(ph, arg(string(s)))
		}
		var parts []string
		if len(ph) > 0 {
			parts = append(parts, "status IN ("+strings.Join(ph, ", ")+")")
		}
		if f.HasPending() {
			parts = append(parts, "status IS NULL", "status = ''", "status = 'pending'")
		}
		where = append(where, "("+strings.Join(parts, " OR ")+")")
	}
	if !f.UpdatedSince.IsZero() {
		where = append(where, "updated_at >= "+arg(f.UpdatedSince))
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
	q += ` LIMIT ` + arg(f.EffectiveLimit())

	rows, err := r.pool.Query(ctx, q, args...)
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
	rows, err := r.pool.Query(ctx, `SELECT COALESCE(status, ''), COUNT(*) FROM articles GROUP BY 1;`)
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

func nullableStatus(s entity.ArticleStatus) any {
	if s == entity.ArticlePending {
		return nil
	}
	return string(s)
}

func scanArticle(row pgx.Row) (*entity.Article, error) {
	var (
		a          entity.Article
		status     *string
		contentKey *string
		errText    *string
	)
	if err := row.Scan(
		&a.ID,
		&a.URL,
		&a.Source,
		&a.Title,
		&status,
		&contentKey,
		&errText,
		&a.TranslatedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if status != nil {
		a.Status, _ = entity.ParseArticleStatus(*status)
	}
	if contentKey != nil {
		a.ContentKey = *contentKey
	}
	if errText != nil {
		a.Error = *errText
	}
	return &a, nil
}
