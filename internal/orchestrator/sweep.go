package orchestrator

import (
	"context"
	"fmt"
	"time"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/stage"
)

const sweepWorkerID = "orchestrator-sweep"

type SweepResult struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Repaired  int `json:"repaired"`
}

// RetrySweep gives recent failed jobs with attempt budget one more in-process
// pass, then creates successor jobs that chaining failed to create.
func (o *Orchestrator) RetrySweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	since := o.now().UTC().Add(-o.cfg.RetryWindow)

	failed, err := o.queue.ListJobs(ctx, repository.JobFilter{
		Statuses:     []entity.JobStatus{entity.StatusFailed},
		CreatedSince: since,
		Limit:        o.cfg.RetryLimit * 5,
	})
	if err != nil {
		return res, fmt.Errorf("list failed jobs: %w", err)
	}
	for _, job := range failed {
		if res.Retried == o.cfg.RetryLimit {
			break
		}
		if !job.CanRetry() {
			continue
		}
		proc, ok := o.processors[job.Type]
		if !ok {
			continue
		}
		claimed, err := o.queue.ReclaimFailed(ctx, job.ID, sweepWorkerID)
		if err != nil {
			o.log.Info("sweep: job not reclaimable", "job_id", job.ID.String(), "err", err)
			continue
		}
		res.Retried++
		if err := proc.Process(ctx, claimed); err != nil {
			continue
		}
		res.Succeeded++
	}

	res.Repaired, err = o.repairChains(ctx, since)
	if err != nil {
		return res, err
	}
	o.log.Info("retry sweep done", "retried", res.Retried, "succeeded", res.Succeeded, "repaired", res.Repaired)
	return res, nil
}

// repairChains finds articles sitting in a stage's done status without any
// job for a configured successor and creates that job.
func (o *Orchestrator) repairChains(ctx context.Context, since time.Time) (int, error) {
	repaired := 0
	for from, next := range o.cfg.Chain {
		def, ok := stage.DefinitionFor(from)
		if !ok || len(next) == 0 {
			continue
		}
		articles, err := o.articles.List(ctx, repository.ArticleFilter{
			Statuses:     []entity.ArticleStatus{def.Done},
			UpdatedSince: since,
			Limit:        o.cfg.RetryLimit,
		})
		if err != nil {
			return repaired, fmt.Errorf("list %s articles: %w", def.Done, err)
		}
		for _, a := range articles {
			for _, typ := range next {
				exists, err := o.queue.JobExists(ctx, typ, a.ID)
				if err != nil {
					return repaired, err
				}
				if exists {
					continue
				}
				payload, err := stage.BuildPayload(typ, a, o.cfg.TargetLanguage)
				if err != nil {
					return repaired, err
				}
				id, err := o.queue.Enqueue(ctx, payload, entity.DefaultPriority)
				if err != nil {
					o.log.Warn("sweep: repair chain", "article_id", a.ID, "next", typ, "err", err)
					continue
				}
				repaired++
				o.log.Info("sweep: chain repaired", "article_id", a.ID, "next", typ, "job_id", id.String())
			}
		}
	}
	return repaired, nil
}
