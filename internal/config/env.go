package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnv overlays environment variables on top of the file values.
func (c *Config) applyEnv() {
	c.HTTP.Addr = envOr("HTTP_ADDR", c.HTTP.Addr)

	c.Store.Driver = envOr("STORE_DRIVER", c.Store.Driver)
	c.Store.PostgresDSN = envOr("POSTGRES_DSN", c.Store.PostgresDSN)
	c.Store.SQLitePath = envOr("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.MaxConns = envIntOr("POSTGRES_MAX_CONNS", c.Store.MaxConns)

	c.Redis.Addr = envOr("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOr("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envIntOr("REDIS_DB", c.Redis.DB)
	c.Redis.KeyPrefix = envOr("REDIS_KEY_PREFIX", c.Redis.KeyPrefix)

	c.Queue.URL = envOr("QUEUE_URL", c.Queue.URL)
	c.Queue.LeaseSeconds = envIntOr("QUEUE_LEASE_SECONDS", c.Queue.LeaseSeconds)

	c.Worker.Stage = envOr("WORKER_STAGE", c.Worker.Stage)
	c.Worker.ID = envOr("WORKER_ID", c.Worker.ID)
	c.Worker.BatchSize = envIntOr("WORKER_BATCH_SIZE", c.Worker.BatchSize)
	c.Worker.Concurrency = envIntOr("WORKERS", c.Worker.Concurrency)
	c.Worker.TargetLanguage = envOr("TARGET_LANGUAGE", c.Worker.TargetLanguage)

	c.Remote.ExtractorURL = envOr("EXTRACTOR_URL", c.Remote.ExtractorURL)
	c.Remote.EmbedderURL = envOr("EMBEDDER_URL", c.Remote.EmbedderURL)
	c.Remote.SummarizerURL = envOr("SUMMARIZER_URL", c.Remote.SummarizerURL)
	c.Remote.TranslatorURL = envOr("TRANSLATOR_URL", c.Remote.TranslatorURL)
	c.Remote.TaggerURL = envOr("TAGGER_URL", c.Remote.TaggerURL)
	c.Remote.APIKey = envOr("REMOTE_API_KEY", c.Remote.APIKey)

	c.Orchestrator.IntervalSeconds = envIntOr("ORCHESTRATOR_INTERVAL_SECONDS", c.Orchestrator.IntervalSeconds)
	c.Orchestrator.LockPath = envOr("ORCHESTRATOR_LOCK_PATH", c.Orchestrator.LockPath)
	// WORKER_URLS=extract=http://a:8081,vectorize=http://b:8082
	if raw := os.Getenv("WORKER_URLS"); raw != "" {
		urls := map[string]string{}
		for _, pair := range strings.Split(raw, ",") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && k != "" && v != "" {
				urls[k] = v
			}
		}
		c.Orchestrator.WorkerURLs = urls
	}

	c.Logging.Level = envOr("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envOr("LOG_FORMAT", c.Logging.Format)
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
