package orchestrator_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"article-pipeline/internal/entity"
	"article-pipeline/internal/handoff"
	"article-pipeline/internal/orchestrator"
	"article-pipeline/internal/repository"
	"article-pipeline/internal/service"
	"article-pipeline/internal/stage"
	"article-pipeline/internal/testsupport"
	"article-pipeline/internal/worker"
)

var start = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

type env struct {
	t       *testing.T
	stores  testsupport.Stores
	clock   *testsupport.Clock
	qm      *service.QueueManager
	remotes *testsupport.Remotes
	procs   []*worker.Processor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := testsupport.NewStores(t)
	clock := testsupport.NewClock(start)
	qm := service.NewQueueManager(st.Jobs, service.Options{Now: clock.Now, Logger: testsupport.DiscardLogger()})
	remotes := testsupport.NewRemotes()
	store := handoff.NewMemoryStore()

	var procs []*worker.Processor
	for _, typ := range []entity.JobType{entity.JobExtract, entity.JobVectorize} {
		h, err := stage.New(typ, stage.Deps{Handoff: store, Extractor: remotes, Embedder: remotes, Now: clock.Now})
		if err != nil {
			t.Fatalf("stage: %v", err)
		}
		procs = append(procs, worker.NewProcessor(h, qm, st.Articles, worker.ProcessorConfig{
			Now: clock.Now, Logger: testsupport.DiscardLogger(),
		}))
	}
	return &env{t: t, stores: st, clock: clock, qm: qm, remotes: remotes, procs: procs}
}

func (e *env) orchestrator(cfg orchestrator.Config, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	opts = append(opts, orchestrator.WithClock(e.clock.Now))
	return orchestrator.New(cfg, e.qm, e.stores.Articles, e.procs, testsupport.DiscardLogger(), opts...)
}

func (e *env) article(id int64, status entity.ArticleStatus) {
	e.t.Helper()
	if _, err := e.stores.Articles.Create(context.Background(), &entity.Article{ID: id, URL: "https://x", Status: status}, e.clock.Now()); err != nil {
		e.t.Fatalf("create article: %v", err)
	}
}

func TestRunPipeline_TriggersEachWorker(t *testing.T) {
	e := newEnv(t)

	var calls atomic.Int32
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/process" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed_jobs":2,"total_jobs":3,"direct_processed":0}`))
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()

	// One stale processing job for cleanup to reclaim.
	id, err := e.qm.Enqueue(context.Background(), entity.ExtractPayload{ArticleID: 1, URL: "https://x"}, 1)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := e.qm.ClaimJob(context.Background(), id, "crashed"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	e.clock.Advance(10 * time.Minute)

	o := e.orchestrator(orchestrator.Config{
		Steps: []entity.JobType{entity.JobExtract, entity.JobVectorize, entity.JobSummarize},
		WorkerURLs: map[entity.JobType]string{
			entity.JobExtract:   ok.URL,
			entity.JobVectorize: broken.URL + "/",
		},
	})
	res, err := o.RunPipeline(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Reclaimed != 1 {
		t.Fatalf("reclaimed = %d", res.Reclaimed)
	}
	if len(res.Steps) != 3 || !res.Failed() {
		t.Fatalf("unexpected steps: %+v", res.Steps)
	}
	if res.Steps[0].Result == nil || res.Steps[0].Result.ProcessedJobs != 2 {
		t.Fatalf("extract step: %+v", res.Steps[0])
	}
	if res.Steps[1].Error == "" || res.Steps[2].Error == "" {
		t.Fatalf("vectorize and summarize should report errors: %+v", res.Steps)
	}
	if calls.Load() != 1 {
		t.Fatalf("ok server calls = %d", calls.Load())
	}
	if j, _ := e.qm.GetJob(context.Background(), id); j.Status != entity.StatusPending {
		t.Fatalf("stale job not reclaimed: %s", j.Status)
	}
}

func TestRetrySweep_RetriesPermanentFailure(t *testing.T) {
	e := newEnv(t)
	e.article(5, entity.ArticlePending)
	id, _ := e.qm.Enqueue(context.Background(), entity.ExtractPayload{ArticleID: 5, URL: "https://x"}, 1)

	// First pass fails permanently on short content.
	e.remotes.Extraction.Content = "short"
	job, err := e.qm.ClaimJob(context.Background(), id, "w1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	_ = e.procs[0].Process(context.Background(), job)
	if j, _ := e.qm.GetJob(context.Background(), id); j.Status != entity.StatusFailed || j.Attempts != 1 {
		t.Fatalf("setup: job = %s/%d", j.Status, j.Attempts)
	}

	e.remotes.Extraction.Content = testsupport.LongText
	o := e.orchestrator(orchestrator.Config{})
	res, err := o.RetrySweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Retried != 1 || res.Succeeded != 1 {
		t.Fatalf("unexpected sweep result %+v", res)
	}
	j, _ := e.qm.GetJob(context.Background(), id)
	if j.Status != entity.StatusCompleted || j.Attempts != 1 {
		t.Fatalf("job = %s/%d, want completed/1", j.Status, j.Attempts)
	}
	a, _ := e.stores.Articles.GetByID(context.Background(), 5)
	if a.Status != entity.ArticleExtracted {
		t.Fatalf("article = %q", a.Status)
	}
}

func TestRetrySweep_SkipsExhaustedAndOldJobs(t *testing.T) {
	e := newEnv(t)
	e.article(6, entity.ArticlePending)
	exhausted, _ := e.qm.Enqueue(context.Background(), entity.ExtractPayload{ArticleID: 6, URL: "https://x"}, 1)
	for i := 0; i < 3; i++ {
		if _, err := e.qm.FailJob(context.Background(), exhausted, "timeout", false); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}

	e.clock.Advance(-48 * time.Hour)
	old, _ := e.qm.Enqueue(context.Background(), entity.ExtractPayload{ArticleID: 6, URL: "https://x"}, 1)
	if _, err := e.qm.FailJob(context.Background(), old, "bad", true); err != nil {
		t.Fatalf("fail: %v", err)
	}
	e.clock.Advance(48 * time.Hour)

	res, err := e.orchestrator(orchestrator.Config{}).RetrySweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Retried != 0 {
		t.Fatalf("nothing should be retried, got %+v", res)
	}
	if e.remotes.Calls("extract") != 0 {
		t.Fatalf("extractor should not run")
	}
}

func TestRetrySweep_RepairsMissingChain(t *testing.T) {
	e := newEnv(t)
	e.article(7, entity.ArticleExtracted)
	e.article(8, entity.ArticleExtracted)
	if _, err := e.qm.Enqueue(context.Background(), entity.VectorizePayload{ArticleID: 8, ContentKey: handoff.ContentKey(8)}, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	o := e.orchestrator(orchestrator.Config{
		Chain: map[entity.JobType][]entity.JobType{entity.JobExtract: {entity.JobVectorize}},
	})
	res, err := o.RetrySweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Repaired != 1 {
		t.Fatalf("repaired = %d, want 1", res.Repaired)
	}
	jobs, _ := e.qm.ListJobs(context.Background(), repository.JobFilter{ArticleID: 7})
	if len(jobs) != 1 || jobs[0].Type != entity.JobVectorize {
		t.Fatalf("unexpected jobs for article 7: %+v", jobs)
	}

	res, _ = o.RetrySweep(context.Background())
	if res.Repaired != 0 {
		t.Fatalf("second sweep repaired %d", res.Repaired)
	}
}

func TestTick_HonoursLock(t *testing.T) {
	e := newEnv(t)
	lockPath := filepath.Join(t.TempDir(), "orchestrator.lock")

	held := flock.New(lockPath)
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("take lock: %v %v", locked, err)
	}

	o := e.orchestrator(orchestrator.Config{LockPath: lockPath, Steps: []entity.JobType{entity.JobExtract}})
	if _, err := o.Tick(context.Background()); !errors.Is(err, orchestrator.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	if err := held.Unlock(); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	res, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(res.Pipeline.Steps) != 1 || res.Sweep != nil {
		t.Fatalf("unexpected tick result %+v", res)
	}
}

func TestIngestAndStatus(t *testing.T) {
	e := newEnv(t)
	o := e.orchestrator(orchestrator.Config{})

	if _, err := o.Ingest(context.Background(), orchestrator.IngestRequest{}); !errors.Is(err, service.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	res, err := o.Ingest(context.Background(), orchestrator.IngestRequest{URL: "https://news.example/a", Source: "wire"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ArticleID == 0 {
		t.Fatalf("no article id")
	}
	job, err := e.qm.GetJob(context.Background(), res.JobID)
	if err != nil || job.Type != entity.JobExtract || job.ArticleID != res.ArticleID {
		t.Fatalf("unexpected job %+v %v", job, err)
	}

	st, err := o.PipelineStatus(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Articles["pending"] != 1 || st.Jobs.Pending != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}
