package app

import (
	"context"
	"path/filepath"
	"testing"

	"article-pipeline/internal/config"
	"article-pipeline/internal/testsupport"
)

func TestRedactDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://app:s3cret@db:5432/pipeline?sslmode=disable": "postgres://app:****@db:5432/pipeline?sslmode=disable",
		"postgres://db:5432/pipeline":                            "postgres://db:5432/pipeline",
		"host=db user=app":                                       "host=db user=app",
	}
	for in, want := range cases {
		if got := RedactDSN(in); got != want {
			t.Errorf("RedactDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenStores_SQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "pipeline.db")

	st, err := OpenStores(context.Background(), cfg, testsupport.DiscardLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	counts, err := st.Articles.CountByStatus(context.Background())
	if err != nil || len(counts) != 0 {
		t.Fatalf("counts = %v, %v", counts, err)
	}
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Store.Driver = "mysql"
	if _, err := OpenStores(context.Background(), cfg, testsupport.DiscardLogger()); err == nil {
		t.Fatal("expected error")
	}
}
