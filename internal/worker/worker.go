// Package worker is the generic Stage Worker: poll the queue for one job type,
// drain the batch, and fall back to scanning articles when the queue is empty.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
	"article-pipeline/internal/stage"
)

const (
	DefaultBatchSize       = 5
	DefaultDirectScanLimit = 3
	// scanOverfetch widens the article query so rows with open jobs can be skipped.
	scanOverfetch = 4
)

type Config struct {
	WorkerID  string
	BatchSize int
	// DirectScanLimit caps the fallback scan; negative disables it.
	DirectScanLimit int
	Concurrency     int
	TargetLanguage  string
}

type ProcessResult struct {
	ProcessedJobs   int `json:"processed_jobs"`
	TotalJobs       int `json:"total_jobs"`
	DirectProcessed int `json:"direct_processed"`
}

type Worker struct {
	cfg       Config
	def       stage.Definition
	queue     Queue
	articles  ArticleStore
	processor *Processor
	pool      *Pool
	log       *slog.Logger
}

func New(cfg Config, processor *Processor, queue Queue, articles ArticleStore, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.DirectScanLimit == 0 {
		cfg.DirectScanLimit = DefaultDirectScanLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := processor.Definition()
	if cfg.WorkerID == "" {
		cfg.WorkerID = fmt.Sprintf("worker-%s-%d", def.Type, time.Now().UnixNano())
	}
	log := logger.With("stage", def.Type, "worker_id", cfg.WorkerID)
	return &Worker{
		cfg:       cfg,
		def:       def,
		queue:     queue,
		articles:  articles,
		processor: processor,
		pool:      NewPool(processor, cfg.Concurrency, log),
		log:       log,
	}
}

func (w *Worker) Definition() stage.Definition { return w.def }

// Process runs one poll-and-drain cycle. The direct scan only runs when the
// poll returned nothing.
func (w *Worker) Process(ctx context.Context) (ProcessResult, error) {
	var res ProcessResult

	jobs, err := w.queue.ClaimJobsForWorker(ctx, w.def.Type, w.cfg.BatchSize, w.cfg.WorkerID)
	if err != nil {
		return res, fmt.Errorf("poll %s: %w", w.def.Type, err)
	}
	res.TotalJobs = len(jobs)
	if len(jobs) > 0 {
		res.ProcessedJobs = w.pool.Run(ctx, jobs)
		w.log.Info("batch drained", "processed", res.ProcessedJobs, "total", res.TotalJobs)
		return res, nil
	}

	if w.cfg.DirectScanLimit < 0 || len(w.def.DirectScan) == 0 {
		return res, nil
	}
	res.DirectProcessed, err = w.directScan(ctx)
	if err != nil {
		return res, err
	}
	if res.DirectProcessed > 0 {
		w.log.Info("direct scan processed", "count", res.DirectProcessed)
	}
	return res, nil
}

// directScan finds articles waiting for this stage that have no open job and
// pushes each through a synthetic job, so failures count attempts like any
// queued job.
func (w *Worker) directScan(ctx context.Context) (int, error) {
	candidates, err := w.articles.List(ctx, repository.ArticleFilter{
		Statuses:     w.def.DirectScan,
		Untranslated: w.def.Branch,
		Limit:        w.cfg.DirectScanLimit * scanOverfetch,
	})
	if err != nil {
		return 0, fmt.Errorf("direct scan %s: %w", w.def.Type, err)
	}

	var taken []*entity.Job
	for _, a := range candidates {
		if len(taken) == w.cfg.DirectScanLimit {
			break
		}
		job, ok := w.syntheticJob(ctx, a)
		if ok {
			taken = append(taken, job)
		}
	}
	if len(taken) == 0 {
		return 0, nil
	}
	return w.pool.Run(ctx, taken), nil
}

func (w *Worker) syntheticJob(ctx context.Context, a *entity.Article) (*entity.Job, bool) {
	open, err := w.queue.HasOpenJob(ctx, w.def.Type, a.ID)
	if err != nil {
		w.log.Warn("direct scan: check open job", "article_id", a.ID, "err", err)
		return nil, false
	}
	if open {
		return nil, false
	}
	payload, err := stage.BuildPayload(w.def.Type, a, w.cfg.TargetLanguage)
	if err != nil {
		w.log.Warn("direct scan: build payload", "article_id", a.ID, "err", err)
		return nil, false
	}
	id, err := w.queue.Enqueue(ctx, payload, entity.DefaultPriority)
	if err != nil {
		w.log.Warn("direct scan: enqueue", "article_id", a.ID, "err", err)
		return nil, false
	}
	job, err := w.queue.ClaimJob(ctx, id, w.cfg.WorkerID)
	if errors.Is(err, service.ErrInvalidState) {
		// A polling worker got to it first; it will be processed there.
		w.log.Info("direct scan: synthetic job claimed elsewhere", "article_id", a.ID, "job_id", id.String())
		return nil, false
	}
	if err != nil {
		w.log.Warn("direct scan: claim synthetic job", "article_id", a.ID, "job_id", id.String(), "err", err)
		return nil, false
	}
	return job, true
}

// Invoke runs the stage synchronously for a raw payload, bypassing the queue.
func (w *Worker) Invoke(ctx context.Context, raw json.RawMessage) error {
	if err := service.ValidatePayload(w.def.Type, raw); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	payload, err := entity.DecodePayload(w.def.Type, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return w.processor.Execute(ctx, payload)
}

// EnqueuePending creates jobs of this stage for articles in its direct-scan
// statuses that have no open job. It returns the number of jobs created.
func (w *Worker) EnqueuePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	articles, err := w.articles.List(ctx, repository.ArticleFilter{
		Statuses:     w.def.DirectScan,
		Untranslated: w.def.Branch,
		Limit:        limit,
	})
	if err != nil {
		return 0, fmt.Errorf("list articles: %w", err)
	}
	created := 0
	for _, a := range articles {
		open, err := w.queue.HasOpenJob(ctx, w.def.Type, a.ID)
		if err != nil {
			return created, err
		}
		if open {
			continue
		}
		payload, err := stage.BuildPayload(w.def.Type, a, w.cfg.TargetLanguage)
		if err != nil {
			return created, err
		}
		if _, err := w.queue.Enqueue(ctx, payload, entity.DefaultPriority); err != nil {
			return created, err
		}
		created++
	}
	w.log.Info("pending articles enqueued", "count", created, "scanned", len(articles))
	return created, nil
}
