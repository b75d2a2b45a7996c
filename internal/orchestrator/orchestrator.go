// Package orchestrator drives the pipeline on a schedule: stale-lease
// cleanup, a /process trigger per stage worker, and the retry sweep.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
	"article-pipeline/internal/worker"
)

// ErrBusy is returned when another orchestrator holds the tick lock.
var ErrBusy = errors.New("orchestrator: another tick is running")

// Queue is the Queue Manager surface the orchestrator uses.
type Queue interface {
	Cleanup(ctx context.Context) (int64, error)
	ListJobs(ctx context.Context, f repository.JobFilter) ([]*entity.Job, error)
	ReclaimFailed(ctx context.Context, id uuid.UUID, workerID string) (*entity.Job, error)
	Enqueue(ctx context.Context, p entity.Payload, priority int) (uuid.UUID, error)
	JobExists(ctx context.Context, typ entity.JobType, articleID int64) (bool, error)
	Stats(ctx context.Context) (service.Stats, error)
}

type ArticleStore interface {
	Create(ctx context.Context, a *entity.Article, now time.Time) (int64, error)
	List(ctx context.Context, f repository.ArticleFilter) ([]*entity.Article, error)
	CountByStatus(ctx context.Context) (map[entity.ArticleStatus]int, error)
}

type Config struct {
	Interval   time.Duration
	Steps      []entity.JobType
	WorkerURLs map[entity.JobType]string
	// Chain is the successor table used by chain-gap repair.
	Chain          map[entity.JobType][]entity.JobType
	TargetLanguage string
	RetryWindow    time.Duration
	RetryLimit     int
	LockPath       string
	SweepEnabled   bool
}

type Orchestrator struct {
	cfg        Config
	queue      Queue
	articles   ArticleStore
	processors map[entity.JobType]*worker.Processor
	http       *http.Client
	lock       *flock.Flock
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Orchestrator)

func WithHTTPClient(hc *http.Client) Option {
	return func(o *Orchestrator) { o.http = hc }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an orchestrator. processors are the in-process stage runners the
// retry sweep uses; stages without one are skipped by the sweep.
func New(cfg Config, queue Queue, articles ArticleStore, processors []*worker.Processor, logger *slog.Logger, opts ...Option) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RetryWindow <= 0 {
		cfg.RetryWindow = 24 * time.Hour
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 10
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = entity.JobTypes()
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:        cfg,
		queue:      queue,
		articles:   articles,
		processors: make(map[entity.JobType]*worker.Processor, len(processors)),
		http:       &http.Client{Timeout: 5 * time.Minute},
		now:        time.Now,
		log:        logger,
	}
	for _, p := range processors {
		o.processors[p.Definition().Type] = p
	}
	if cfg.LockPath != "" {
		o.lock = flock.New(cfg.LockPath)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run ticks until ctx is done. The first tick fires immediately.
func (o *Orchestrator) Run(ctx context.Context) {
	o.log.Info("orchestrator started", "interval", o.cfg.Interval.String(), "steps", o.cfg.Steps)
	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := o.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			o.log.Warn("tick", "err", err)
		}
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator stopped")
			return
		case <-ticker.C:
		}
	}
}

type TickResult struct {
	Pipeline RunResult    `json:"pipeline"`
	Sweep    *SweepResult `json:"sweep,omitempty"`
}

// Tick runs one scheduler cycle under the file lock.
func (o *Orchestrator) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	unlock, err := o.acquire()
	if err != nil {
		return res, err
	}
	defer unlock()

	res.Pipeline, err = o.RunPipeline(ctx, o.cfg.Steps)
	if err != nil {
		return res, err
	}
	if o.cfg.SweepEnabled {
		sweep, err := o.RetrySweep(ctx)
		if err != nil {
			return res, err
		}
		res.Sweep = &sweep
	}
	return res, nil
}

func (o *Orchestrator) acquire() (func(), error) {
	if o.lock == nil {
		return func() {}, nil
	}
	ok, err := o.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", o.cfg.LockPath, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		if err := o.lock.Unlock(); err != nil {
			o.log.Warn("release lock", "path", o.cfg.LockPath, "err", err)
		}
	}, nil
}

type IngestRequest struct {
	URL    string `json:"url"`
	Source string `json:"source"`
	Title  string `json:"title"`
}

type IngestResult struct {
	ArticleID int64     `json:"article_id"`
	JobID     uuid.UUID `json:"job_id"`
}

// Ingest records a new article and queues its extraction.
func (o *Orchestrator) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if req.URL == "" {
		return IngestResult{}, fmt.Errorf("%w: url is required", service.ErrValidation)
	}
	id, err := o.articles.Create(ctx, &entity.Article{URL: req.URL, Source: req.Source, Title: req.Title}, o.now().UTC())
	if err != nil {
		return IngestResult{}, fmt.Errorf("create article: %w", err)
	}
	jobID, err := o.queue.Enqueue(ctx, entity.ExtractPayload{ArticleID: id, URL: req.URL, SourceName: req.Source}, entity.DefaultPriority)
	if err != nil {
		// The article stays pending; the extract direct scan picks it up.
		o.log.Warn("ingest: enqueue extract", "article_id", id, "err", err)
		return IngestResult{ArticleID: id}, nil
	}
	o.log.Info("article ingested", "article_id", id, "job_id", jobID.String())
	return IngestResult{ArticleID: id, JobID: jobID}, nil
}

type PipelineStatus struct {
	Articles map[string]int `json:"articles"`
	Jobs     service.Stats  `json:"jobs"`
}

func (o *Orchestrator) PipelineStatus(ctx context.Context) (PipelineStatus, error) {
	counts, err := o.articles.CountByStatus(ctx)
	if err != nil {
		return PipelineStatus{}, fmt.Errorf("count articles: %w", err)
	}
	stats, err := o.queue.Stats(ctx)
	if err != nil {
		return PipelineStatus{}, err
	}
	out := PipelineStatus{Articles: make(map[string]int, len(counts)), Jobs: stats}
	for st, n := range counts {
		out.Articles[st.String()] = n
	}
	return out, nil
}
