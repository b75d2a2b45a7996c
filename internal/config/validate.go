package config

import (
	"errors"
	"fmt"
	"strings"

	"article-pipeline/internal/entity"
)

type Role string

const (
	RoleQueueManager Role = "queue-manager"
	RoleStageWorker  Role = "stage-worker"
	RoleOrchestrator Role = "orchestrator"
)

// Validate checks the fields the given service needs.
func (c *Config) Validate(role Role) error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	switch role {
	case RoleQueueManager:
		if err := c.validateStore(); err != nil {
			return err
		}
		if c.Queue.LeaseSeconds <= 0 {
			return errors.New("queue.lease_seconds must be positive")
		}
	case RoleStageWorker:
		if err := c.validateStore(); err != nil {
			return err
		}
		if err := c.validateWorker(); err != nil {
			return err
		}
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return errors.New("redis.addr is required for stage workers")
		}
	case RoleOrchestrator:
		if err := c.validateStore(); err != nil {
			return err
		}
		if c.Orchestrator.IntervalSeconds <= 0 {
			return errors.New("orchestrator.interval_seconds must be positive")
		}
		if c.Orchestrator.RetryLimit < 0 {
			return errors.New("orchestrator.retry_limit must not be negative")
		}
		for _, stage := range c.Orchestrator.Steps {
			if _, ok := entity.ParseJobType(stage); !ok {
				return fmt.Errorf("orchestrator.steps: unknown stage %q", stage)
			}
		}
		for stage := range c.Orchestrator.WorkerURLs {
			if _, ok := entity.ParseJobType(stage); !ok {
				return fmt.Errorf("orchestrator.worker_urls: unknown stage %q", stage)
			}
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if strings.TrimSpace(c.Queue.URL) == "" && role != RoleQueueManager {
		return errors.New("queue.url is required")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Store.PostgresDSN) == "" {
			return errors.New("store.postgres_dsn is required (POSTGRES_DSN)")
		}
	case "sqlite":
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			return errors.New("store.sqlite_path is required (SQLITE_PATH)")
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateWorker() error {
	if _, ok := entity.ParseJobType(c.Worker.Stage); !ok {
		return fmt.Errorf("worker.stage: unknown stage %q (WORKER_STAGE)", c.Worker.Stage)
	}
	if c.Worker.BatchSize <= 0 {
		return errors.New("worker.batch_size must be positive")
	}
	if c.Worker.DirectScanLimit < 0 {
		return errors.New("worker.direct_scan_limit must not be negative")
	}
	for from, next := range c.Worker.Next {
		if _, ok := entity.ParseJobType(from); !ok {
			return fmt.Errorf("worker.next: unknown stage %q", from)
		}
		for _, n := range next {
			if _, ok := entity.ParseJobType(n); !ok {
				return fmt.Errorf("worker.next.%s: unknown stage %q", from, n)
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}
