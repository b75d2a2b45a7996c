package postgresql_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/repository/postgresql"
	"article-pipeline/internal/service"
	"article-pipeline/internal/testsupport"
)

// These tests need a disposable database; they truncate jobs and articles.
const dsnEnv = "PIPELINE_TEST_POSTGRES_DSN"

func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	ctx := context.Background()
	pool, err := postgresql.NewPool(ctx, postgresql.PoolConfig{DSN: dsn, MaxConns: 16, ApplicationName: "article-pipeline-test"})
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := postgresql.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE jobs, articles RESTART IDENTITY;`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func TestJobRepository_ConcurrentClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	pool := openPool(t)
	qm := service.NewQueueManager(postgresql.NewJobRepository(pool), service.Options{Logger: testsupport.DiscardLogger()})

	const total = 40
	for i := int64(1); i <= total; i++ {
		if _, err := qm.Enqueue(ctx, entity.VectorizePayload{ArticleID: i, ContentKey: "content/x.json"}, entity.DefaultPriority); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var (
		mu     sync.Mutex
		counts = map[string]int{}
		wg     sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				jobs, err := qm.ClaimJobsForWorker(ctx, entity.JobVectorize, 3, "w"+string(rune('a'+w)))
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, j := range jobs {
					counts[j.ID.String()]++
				}
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	if len(counts) != total {
		t.Fatalf("claimed %d distinct jobs, want %d", len(counts), total)
	}
	for id, n := range counts {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestJobRepository_FailStoresMultiByteError(t *testing.T) {
	ctx := context.Background()
	pool := openPool(t)
	qm := service.NewQueueManager(postgresql.NewJobRepository(pool), service.Options{Logger: testsupport.DiscardLogger()})

	id, err := qm.Enqueue(ctx, entity.VectorizePayload{ArticleID: 1, ContentKey: "content/x.json"}, entity.DefaultPriority)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := qm.ClaimJob(ctx, id, "w1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	res, err := qm.FailJob(ctx, id, "x"+strings.Repeat("é", 600)+"\x00", false)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if res.Status != entity.StatusPending || res.Attempts != 1 {
		t.Fatalf("fail result = %+v", res)
	}
	j, err := qm.GetJob(ctx, id)
	if err != nil || j.Error == nil || !utf8.ValidString(*j.Error) {
		t.Fatalf("stored error: %+v, %v", j, err)
	}
}

func TestArticleRepository_TranslationMarker(t *testing.T) {
	ctx := context.Background()
	pool := openPool(t)
	articles := postgresql.NewArticleRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	for _, id := range []int64{1, 2} {
		if _, err := articles.Create(ctx, &entity.Article{ID: id, URL: "https://example.com", Status: entity.ArticleTagged}, now); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	err := articles.ApplyStatus(ctx, 2, entity.StatusChange{
		From: entity.ArticleTagged, To: entity.ArticleTagged, MarkTranslated: true,
	}, now)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	a, err := articles.GetByID(ctx, 2)
	if err != nil || a.TranslatedAt == nil {
		t.Fatalf("translated_at = %v, %v", a, err)
	}

	list, err := articles.List(ctx, repository.ArticleFilter{
		Statuses:     []entity.ArticleStatus{entity.ArticleTagged},
		Untranslated: true,
	})
	if err != nil || len(list) != 1 || list[0].ID != 1 {
		t.Fatalf("untranslated = %+v, %v", list, err)
	}
}
