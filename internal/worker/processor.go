package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/stage"
)

// Queue is the slice of the Queue Manager a worker needs. It is satisfied by
// service.QueueManager in-process and by queueclient.Client over HTTP.
type Queue interface {
	ClaimJobsForWorker(ctx context.Context, typ entity.JobType, limit int, workerID string) ([]*entity.Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID, workerID string) (*entity.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, errText string, permanent bool) (repository.FailResult, error)
	Enqueue(ctx context.Context, p entity.Payload, priority int) (uuid.UUID, error)
	HasOpenJob(ctx context.Context, typ entity.JobType, articleID int64) (bool, error)
}

type ArticleStore interface {
	GetByID(ctx context.Context, id int64) (*entity.Article, error)
	ApplyStatus(ctx context.Context, id int64, ch entity.StatusChange, now time.Time) error
	List(ctx context.Context, f repository.ArticleFilter) ([]*entity.Article, error)
}

const maxArticleError = 1000

// ErrArticleBusy reports an article held by a live attempt. A job that hits
// it is left leased: the stale reclaim returns it to pending once the lease
// lapses, and by then the article's Running status can be taken over.
var ErrArticleBusy = errors.New("article busy")

type ProcessorConfig struct {
	// Next lists the job types created after a successful run.
	Next           []entity.JobType
	TargetLanguage string
	// Lease is how long a Running status is trusted before takeover.
	Lease  time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// Processor runs one stage against one article and settles the job.
type Processor struct {
	handler  stage.Handler
	def      stage.Definition
	queue    Queue
	articles ArticleStore
	cfg      ProcessorConfig
	log      *slog.Logger
}

func NewProcessor(h stage.Handler, queue Queue, articles ArticleStore, cfg ProcessorConfig) *Processor {
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	def := h.Definition()
	return &Processor{
		handler:  h,
		def:      def,
		queue:    queue,
		articles: articles,
		cfg:      cfg,
		log:      cfg.Logger.With("stage", def.Type),
	}
}

func (p *Processor) Definition() stage.Definition { return p.def }

func (p *Processor) now() time.Time { return p.cfg.Now().UTC() }

// Process executes a claimed job and reports the outcome to the queue. The
// returned error is the execution error, or the error of settling the job.
func (p *Processor) Process(ctx context.Context, job *entity.Job) error {
	start := time.Now()
	jobID := job.ID.String()

	payload := job.Payload
	if payload == nil {
		decoded, err := entity.DecodePayload(job.Type, job.RawPayload)
		if err != nil {
			err = stage.Permanent(err)
			p.settleFailure(ctx, job, err, start)
			return err
		}
		payload = decoded
	}
	if payload.JobType() != p.def.Type {
		err := stage.Permanentf("job %s has type %s, worker handles %s", jobID, payload.JobType(), p.def.Type)
		p.settleFailure(ctx, job, err, start)
		return err
	}

	p.log.Info("job processing", "job_id", jobID, "type", job.Type, "article_id", payload.ArticleRef(), "attempts", job.Attempts)

	if err := p.Execute(ctx, payload); err != nil {
		if errors.Is(err, ErrArticleBusy) {
			p.log.Info("job left leased, article busy", "job_id", jobID, "article_id", payload.ArticleRef(), "err", err)
			return err
		}
		p.settleFailure(ctx, job, err, start)
		return err
	}

	if err := p.queue.CompleteJob(ctx, job.ID); err != nil {
		p.log.Error("complete job", "job_id", jobID, "err", err)
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	p.log.Info("job done",
		"job_id", jobID, "type", job.Type, "status", entity.StatusCompleted,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (p *Processor) settleFailure(ctx context.Context, job *entity.Job, runErr error, start time.Time) {
	permanent := stage.IsPermanent(runErr)
	res, err := p.queue.FailJob(ctx, job.ID, runErr.Error(), permanent)
	if err != nil {
		p.log.Error("fail job", "job_id", job.ID.String(), "err", err)
		return
	}
	p.log.Warn("job error",
		"job_id", job.ID.String(), "type", job.Type, "status", res.Status,
		"attempts", res.Attempts, "permanent", permanent,
		"duration_ms", time.Since(start).Milliseconds(), "error", runErr.Error())
}

// Execute runs the stage for the payload's article without touching any job.
// An article that is already past this stage is a no-op success; one that is
// held by a live attempt yields ErrArticleBusy.
func (p *Processor) Execute(ctx context.Context, payload entity.Payload) error {
	articleID := payload.ArticleRef()
	a, err := p.articles.GetByID(ctx, articleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return stage.Permanentf("article %d not found", articleID)
		}
		return fmt.Errorf("load article %d: %w", articleID, err)
	}

	done, err := p.handled(a, payload)
	if err != nil {
		return err
	}
	if done {
		p.log.Info("article already handled", "article_id", a.ID, "status", a.Status.String())
		return nil
	}
	if err := entity.ValidateTransition(a.Status, p.def.Running); err != nil {
		return err
	}

	// a branch stage entered from further along returns there
	target := p.def.Done
	if p.def.Branch && entity.IsBranchEdge(a.Status, p.def.Running) && a.Status != p.def.Done {
		target = a.Status
	}

	err = p.articles.ApplyStatus(ctx, a.ID, entity.StatusChange{
		From: a.Status, To: p.def.Running, ClearError: true,
	}, p.now())
	if errors.Is(err, repository.ErrStateConflict) {
		return fmt.Errorf("%w: article %d taken by another worker", ErrArticleBusy, a.ID)
	}
	if err != nil {
		return fmt.Errorf("mark article %d %s: %w", a.ID, p.def.Running, err)
	}
	a.Status = p.def.Running

	out, runErr := p.run(ctx, a, payload)
	if runErr != nil {
		p.recordFailure(ctx, a, runErr)
		return runErr
	}

	err = p.articles.ApplyStatus(ctx, a.ID, entity.StatusChange{
		From:           p.def.Running,
		To:             target,
		ContentKey:     out.ContentKey,
		ClearError:     true,
		MarkTranslated: p.def.Branch,
	}, p.now())
	if errors.Is(err, repository.ErrStateConflict) {
		p.log.Warn("article moved while running", "article_id", a.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark article %d %s: %w", a.ID, target, err)
	}
	if target != p.def.Done {
		p.log.Info("branch done, article returned", "article_id", a.ID, "status", target.String())
		return nil
	}
	a.Status = p.def.Done
	if out.ContentKey != "" {
		a.ContentKey = out.ContentKey
	}

	p.chain(ctx, a)
	return nil
}

// handled reports whether the stage has nothing left to do for a. An article
// held by this or another stage within the lease is busy; past the lease a
// Running status of this stage is a crashed attempt and is taken over.
func (p *Processor) handled(a *entity.Article, payload entity.Payload) (bool, error) {
	fresh := p.now().Sub(a.UpdatedAt) < p.cfg.Lease
	if a.Status == p.def.Running && fresh {
		return false, fmt.Errorf("%w: article %d is %s", ErrArticleBusy, a.ID, a.Status)
	}
	if a.Status.Rank() >= p.def.Done.Rank() {
		c, ok := p.handler.(stage.Completer)
		if !ok {
			return true, nil
		}
		if c.Completed(a, payload) {
			return true, nil
		}
	}
	if a.Status.Active() && a.Status != p.def.Running && fresh && !entity.CanTransition(a.Status, p.def.Running) {
		return false, fmt.Errorf("%w: article %d is %s", ErrArticleBusy, a.ID, a.Status)
	}
	return false, nil
}

// run calls the handler, converting a panic into an ordinary error.
func (p *Processor) run(ctx context.Context, a *entity.Article, payload entity.Payload) (out stage.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", p.def.Verb, r)
		}
	}()
	return p.handler.Run(ctx, a, payload)
}

func (p *Processor) recordFailure(ctx context.Context, a *entity.Article, runErr error) {
	msg := entity.ClipText(runErr.Error(), maxArticleError)
	status := p.def.FailureStatus(runErr)
	err := p.articles.ApplyStatus(ctx, a.ID, entity.StatusChange{
		From: p.def.Running, To: status, Error: msg,
	}, p.now())
	if err != nil {
		p.log.Error("record article failure", "article_id", a.ID, "status", status, "err", err)
	}
}

// chain enqueues the configured next stages. Failures are logged only; the
// retry sweep repairs missing jobs later.
func (p *Processor) chain(ctx context.Context, a *entity.Article) {
	for _, typ := range p.cfg.Next {
		open, err := p.queue.HasOpenJob(ctx, typ, a.ID)
		if err != nil {
			p.log.Warn("chain: check open job", "article_id", a.ID, "next", typ, "err", err)
			continue
		}
		if open {
			continue
		}
		payload, err := stage.BuildPayload(typ, a, p.cfg.TargetLanguage)
		if err != nil {
			p.log.Warn("chain: build payload", "article_id", a.ID, "next", typ, "err", err)
			continue
		}
		id, err := p.queue.Enqueue(ctx, payload, entity.DefaultPriority)
		if err != nil {
			p.log.Warn("chain: enqueue", "article_id", a.ID, "next", typ, "err", err)
			continue
		}
		p.log.Info("chained", "article_id", a.ID, "next", typ, "job_id", id.String())
	}
}
