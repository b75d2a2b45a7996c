package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/worker"
)

type StepResult struct {
	Step   entity.JobType        `json:"step"`
	Result *worker.ProcessResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type RunResult struct {
	Reclaimed int64        `json:"reclaimed"`
	Steps     []StepResult `json:"steps"`
}

// Failed reports whether any step returned an error.
func (r RunResult) Failed() bool {
	for _, s := range r.Steps {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// RunPipeline resets stale leases and then asks each worker in steps order to
// run one /process cycle. A failing step does not stop the others.
func (o *Orchestrator) RunPipeline(ctx context.Context, steps []entity.JobType) (RunResult, error) {
	var res RunResult
	n, err := o.queue.Cleanup(ctx)
	if err != nil {
		return res, fmt.Errorf("cleanup: %w", err)
	}
	res.Reclaimed = n

	if len(steps) == 0 {
		steps = o.cfg.Steps
	}
	for _, step := range steps {
		sr := StepResult{Step: step}
		base, ok := o.cfg.WorkerURLs[step]
		if !ok || base == "" {
			sr.Error = "no worker url configured"
			res.Steps = append(res.Steps, sr)
			continue
		}
		pr, err := o.triggerProcess(ctx, base)
		if err != nil {
			sr.Error = err.Error()
			o.log.Warn("trigger worker", "step", step, "url", base, "err", err)
		} else {
			sr.Result = &pr
			o.log.Info("worker processed", "step", step,
				"processed_jobs", pr.ProcessedJobs, "total_jobs", pr.TotalJobs, "direct_processed", pr.DirectProcessed)
		}
		res.Steps = append(res.Steps, sr)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
	}
	return res, nil
}

func (o *Orchestrator) triggerProcess(ctx context.Context, base string) (worker.ProcessResult, error) {
	var pr worker.ProcessResult
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/process", nil)
	if err != nil {
		return pr, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return pr, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pr, err
	}
	if resp.StatusCode/100 != 2 {
		return pr, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return pr, fmt.Errorf("decode process result: %w", err)
	}
	return pr, nil
}
