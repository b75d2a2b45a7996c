// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"article-pipeline/internal/repository/sqlite"
)

// OpenSQLite opens a migrated database file in t.TempDir.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// Stores bundles the sqlite repositories over one database.
type Stores struct {
	DB       *sql.DB
	Jobs     *sqlite.JobRepository
	Articles *sqlite.ArticleRepository
}

func NewStores(t testing.TB) Stores {
	db := OpenSQLite(t)
	return Stores{DB: db, Jobs: sqlite.NewJobRepository(db), Articles: sqlite.NewArticleRepository(db)}
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// DiscardLogger drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
