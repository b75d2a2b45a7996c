// Package config loads service configuration from an optional TOML file and
// environment overrides. Durations are integer seconds in the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"article-pipeline/internal/entity"
)

// HTTP holds the listen address of a service.
type HTTP struct {
	Addr string `toml:"addr"`
}

// Store selects the Job Store and Article store backend.
type Store struct {
	Driver                  string `toml:"driver"` // postgres or sqlite
	PostgresDSN             string `toml:"postgres_dsn"`
	SQLitePath              string `toml:"sqlite_path"`
	MaxConns                int    `toml:"max_conns"`
	MinConns                int    `toml:"min_conns"`
	StatementTimeoutSeconds int    `toml:"statement_timeout_seconds"`
	Migrate                 bool   `toml:"migrate"`
}

// Redis backs the Content Handoff Store.
type Redis struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	KeyPrefix  string `toml:"key_prefix"`
	TTLSeconds int    `toml:"ttl_seconds"`
}

// Queue configures the Queue Manager and how clients reach it.
type Queue struct {
	URL            string `toml:"url"`
	LeaseSeconds   int    `toml:"lease_seconds"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Worker configures one Stage Worker instance.
type Worker struct {
	Stage           string              `toml:"stage"`
	ID              string              `toml:"id"`
	BatchSize       int                 `toml:"batch_size"`
	DirectScanLimit int                 `toml:"direct_scan_limit"`
	Concurrency     int                 `toml:"concurrency"`
	TargetLanguage  string              `toml:"target_language"`
	Next            map[string][]string `toml:"next"`
}

// Remote lists the external stage bodies.
type Remote struct {
	ExtractorURL   string `toml:"extractor_url"`
	EmbedderURL    string `toml:"embedder_url"`
	SummarizerURL  string `toml:"summarizer_url"`
	TranslatorURL  string `toml:"translator_url"`
	TaggerURL      string `toml:"tagger_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Orchestrator configures the scheduler and retry sweep.
type Orchestrator struct {
	IntervalSeconds  int               `toml:"interval_seconds"`
	WorkerURLs       map[string]string `toml:"worker_urls"`
	Steps            []string          `toml:"steps"`
	RetryWindowHours int               `toml:"retry_window_hours"`
	RetryLimit       int               `toml:"retry_limit"`
	LockPath         string            `toml:"lock_path"`
	SweepEnabled     bool              `toml:"sweep_enabled"`
}

type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // auto, text or json
}

type Config struct {
	HTTP         HTTP         `toml:"http"`
	Store        Store        `toml:"store"`
	Redis        Redis        `toml:"redis"`
	Queue        Queue        `toml:"queue"`
	Worker       Worker       `toml:"worker"`
	Remote       Remote       `toml:"remote"`
	Orchestrator Orchestrator `toml:"orchestrator"`
	Logging      Logging      `toml:"logging"`
}

// Load starts from Default, decodes path when it exists, then applies the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Worker.Stage = strings.ToLower(strings.TrimSpace(c.Worker.Stage))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Queue.URL = strings.TrimRight(strings.TrimSpace(c.Queue.URL), "/")
	for k, v := range c.Orchestrator.WorkerURLs {
		c.Orchestrator.WorkerURLs[k] = strings.TrimRight(strings.TrimSpace(v), "/")
	}
}

func (c *Config) Lease() time.Duration {
	return time.Duration(c.Queue.LeaseSeconds) * time.Second
}

func (c *Config) QueueTimeout() time.Duration {
	return time.Duration(c.Queue.TimeoutSeconds) * time.Second
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

func (c *Config) HandoffTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

func (c *Config) StatementTimeout() time.Duration {
	return time.Duration(c.Store.StatementTimeoutSeconds) * time.Second
}

func (c *Config) Interval() time.Duration {
	return time.Duration(c.Orchestrator.IntervalSeconds) * time.Second
}

func (c *Config) RetryWindow() time.Duration {
	return time.Duration(c.Orchestrator.RetryWindowHours) * time.Hour
}

// NextStages returns the configured successors of stage. Validate has
// already rejected unknown names.
func (c *Config) NextStages(stage entity.JobType) []entity.JobType {
	return toJobTypes(c.Worker.Next[string(stage)])
}

// Chain returns the whole successor table keyed by stage.
func (c *Config) Chain() map[entity.JobType][]entity.JobType {
	out := make(map[entity.JobType][]entity.JobType, len(c.Worker.Next))
	for from, next := range c.Worker.Next {
		out[entity.JobType(from)] = toJobTypes(next)
	}
	return out
}

// Steps returns the orchestrator's trigger order.
func (c *Config) Steps() []entity.JobType {
	return toJobTypes(c.Orchestrator.Steps)
}

// WorkerURLs returns the worker base URLs keyed by stage.
func (c *Config) WorkerURLs() map[entity.JobType]string {
	out := make(map[entity.JobType]string, len(c.Orchestrator.WorkerURLs))
	for stage, url := range c.Orchestrator.WorkerURLs {
		out[entity.JobType(stage)] = url
	}
	return out
}

func toJobTypes(names []string) []entity.JobType {
	out := make([]entity.JobType, 0, len(names))
	for _, n := range names {
		out = append(out, entity.JobType(strings.ToLower(strings.TrimSpace(n))))
	}
	return out
}
