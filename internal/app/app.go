// Package app wires configuration into the stores, clients and servers the
// binaries under cmd share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"

	"article-pipeline/internal/config"
	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
	"article-pipeline/internal/logging"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/repository/postgresql"
	"article-pipeline/internal/repository/sqlite"
	"article-pipeline/internal/service"
	"article-pipeline/internal/services/remote"
	"article-pipeline/internal/stage"
)

// ArticleStore is the union of what the worker and the orchestrator need.
type ArticleStore interface {
	Create(ctx context.Context, a *entity.Article, now time.Time) (int64, error)
	GetByID(ctx context.Context, id int64) (*entity.Article, error)
	ApplyStatus(ctx context.Context, id int64, ch entity.StatusChange, now time.Time) error
	List(ctx context.Context, f repository.ArticleFilter) ([]*entity.Article, error)
	CountByStatus(ctx context.Context) (map[entity.ArticleStatus]int, error)
}

type Stores struct {
	Jobs     service.JobStore
	Articles ArticleStore
	Close    func()
}

// OpenStores connects the configured backend. Both stores share one database.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := postgresql.NewPool(ctx, postgresql.PoolConfig{
			DSN:              cfg.Store.PostgresDSN,
			MaxConns:         int32(cfg.Store.MaxConns),
			MinConns:         int32(cfg.Store.MinConns),
			StatementTimeout: cfg.StatementTimeout(),
			ApplicationName:  "article-pipeline",
		})
		if err != nil {
			return nil, fmt.Errorf("pg: %w", err)
		}
		if cfg.Store.Migrate {
			if err := postgresql.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
		}
		logger.Info("store ready", "driver", "postgres", "dsn", RedactDSN(cfg.Store.PostgresDSN))
		return &Stores{
			Jobs:     postgresql.NewJobRepository(pool),
			Articles: postgresql.NewArticleRepository(pool),
			Close:    pool.Close,
		}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("store ready", "driver", "sqlite", "path", cfg.Store.SQLitePath)
		return &Stores{
			Jobs:     sqlite.NewJobRepository(db),
			Articles: sqlite.NewArticleRepository(db),
			Close:    func() { _ = db.Close() },
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func NewLogger(cfg *config.Config, service string) (*slog.Logger, error) {
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Service: service})
}

// OpenHandoff connects to Redis and pings it.
func OpenHandoff(ctx context.Context, cfg *config.Config) (*handoff.RedisStore, func(), error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return handoff.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.HandoffTTL()), func() { _ = rdb.Close() }, nil
}

// StageDeps builds the remote clients for every configured remote URL.
func StageDeps(cfg *config.Config, store handoff.Store) stage.Deps {
	remoteCfg := func(base string) remote.Config {
		return remote.Config{BaseURL: base, APIKey: cfg.Remote.APIKey, Model: cfg.Remote.Model, Timeout: cfg.RemoteTimeout()}
	}
	deps := stage.Deps{Handoff: store, TargetLanguage: cfg.Worker.TargetLanguage}
	if u := cfg.Remote.ExtractorURL; u != "" {
		deps.Extractor = remote.NewExtractor(remoteCfg(u))
	}
	if u := cfg.Remote.EmbedderURL; u != "" {
		deps.Embedder = remote.NewEmbedder(remoteCfg(u))
	}
	if u := cfg.Remote.SummarizerURL; u != "" {
		deps.Summarizer = remote.NewSummarizer(remoteCfg(u))
	}
	if u := cfg.Remote.TranslatorURL; u != "" {
		deps.Translator = remote.NewTranslator(remoteCfg(u))
	}
	if u := cfg.Remote.TaggerURL; u != "" {
		deps.Tagger = remote.NewTagger(remoteCfg(u))
	}
	return deps
}

// Serve runs h on addr until ctx is cancelled, then drains for up to 10s.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("http stopped")
	return nil
}

var dsnPassword = regexp.MustCompile(`://([^:/?#]+):([^@/]+)@`)

// RedactDSN masks the password in user:pass@ and leaves other DSNs alone.
func RedactDSN(dsn string) string {
	return dsnPassword.ReplaceAllString(dsn, `://$1:****@`)
}
