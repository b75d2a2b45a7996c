package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"article-pipeline/internal/entity"
)

// Pool drains a claimed batch with a fixed number of goroutines.
type Pool struct {
	processor *Processor
	workers   int
	log       *slog.Logger
}

func NewPool(processor *Processor, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{processor: processor, workers: workers, log: logger}
}

// Run processes every job and returns how many succeeded. Each job reaches
// completeJob or failJob before Run returns, except jobs whose article is
// busy; those stay leased.
func (p *Pool) Run(ctx context.Context, jobs []*entity.Job) int {
	jobCh := make(chan *entity.Job)
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)

	n := min(p.workers, len(jobs))
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for job := range jobCh {
				if err := p.processor.Process(ctx, job); err != nil {
					p.log.Warn("process job", "worker", n, "job_id", job.ID.String(), "err", err)
					continue
				}
				succeeded.Add(1)
			}
		}(i + 1)
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()
	return int(succeeded.Load())
}
